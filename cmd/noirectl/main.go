package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-print"
	"github.com/spf13/pflag"

	auth "github.com/goliatone/go-noire"
	"github.com/goliatone/go-noire/config"
)

const usage = `usage: noirectl <command> [flags]

commands:
  token   issue an auth token: --id <user id> [--version n] [--expires 1h|never]
  secret  generate a random signing secret
  hash    hash a password: hash <password>
  decode  print the claims of a token: decode [--verify] [--audience auth] <token>
`

// SecretSize is the number of random bytes in a generated secret
const SecretSize = 256

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("missing command")
	}

	switch args[0] {
	case "token":
		return tokenCmd(args[1:], out)
	case "secret":
		return secretCmd(out)
	case "hash":
		return hashCmd(args[1:], out)
	case "decode":
		return decodeCmd(args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func newCodec(fs *pflag.FlagSet) (*auth.TokenCodec, *config.Config, error) {
	cfg, err := config.Load(fs)
	if err != nil {
		return nil, nil, err
	}
	codec, err := auth.NewTokenCodec(cfg.Auth.GetSigningKey(),
		auth.WithTokenExpiration(cfg.Auth.GetTokenExpiration()),
		auth.WithMaxSessionAge(cfg.Auth.GetMaxSessionAge()),
	)
	if err != nil {
		return nil, nil, err
	}
	return codec, cfg, nil
}

func tokenCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	config.Flags(fs)
	id := fs.Int64("id", 1, "user id")
	version := fs.Int("version", -1, "token version, defaults to auth.version")
	expires := fs.String("expires", "", `token lifetime, a duration or "never"`)
	if err := fs.Parse(args); err != nil {
		return err
	}

	codec, cfg, err := newCodec(fs)
	if err != nil {
		return err
	}

	exp, err := parseExpiry(*expires)
	if err != nil {
		return err
	}

	v := *version
	if v < 0 {
		v = cfg.Auth.GetTokenVersion()
	}

	claims := auth.TokenClaims{UserID: *id}
	if v != 0 {
		claims.Version = auth.IntPtr(v)
	}

	token, err := codec.Issue(claims, exp, auth.AudienceAuth)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "JWT authentication token for user %d and version %d:\n%s\n", *id, v, token)
	return nil
}

func parseExpiry(s string) (auth.Expiry, error) {
	switch strings.TrimSpace(s) {
	case "":
		return auth.DefaultExpiry(), nil
	case "never":
		return auth.NeverExpires(), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return auth.Expiry{}, fmt.Errorf("invalid --expires %q", s)
	}
	return auth.ExpiresIn(d), nil
}

func secretCmd(out io.Writer) error {
	buf := make([]byte, SecretSize)
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	secret := base64.StdEncoding.EncodeToString(buf)
	fmt.Fprintf(out, "Randomly generated secret, export it as %sAUTH__SECRET:\n\n", config.EnvPrefix)
	fmt.Fprintf(out, "export %sAUTH__SECRET='%s'\n", config.EnvPrefix, secret)
	return nil
}

func hashCmd(args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "" {
		return errors.New("password is required to generate a hash")
	}
	hash, err := auth.NewBcryptHasher().Hash(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}

func decodeCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("decode", pflag.ContinueOnError)
	config.Flags(fs)
	verify := fs.Bool("verify", false, "check the signature with the configured secret")
	audience := fs.String("audience", "auth", "expected audience when verifying")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("token is required")
	}
	raw := fs.Arg(0)

	if *verify {
		aud, err := auth.ParseAudience(*audience)
		if err != nil {
			return err
		}
		codec, _, err := newCodec(fs)
		if err != nil {
			return err
		}
		claims, err := codec.Decode(raw, aud)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, print.MaybePrettyJSON(claims))
		return nil
	}

	claims := auth.TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return fmt.Errorf("%w: %v", auth.ErrTokenInvalid, err)
	}
	fmt.Fprintln(out, print.MaybePrettyJSON(claims))
	return nil
}
