package auth

import (
	"embed"
	"io/fs"
)

//go:embed views/*.html
var viewsFS embed.FS

// ViewsFS returns the register and password reset templates rooted at views
func ViewsFS() fs.FS {
	sub, err := fs.Sub(viewsFS, "views")
	if err != nil {
		panic(err)
	}
	return sub
}
