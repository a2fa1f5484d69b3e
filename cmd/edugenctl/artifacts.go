package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"edugen/internal/middleware"
)

func runDownload(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		conn   connection
		format string
		out    string
	)
	flags := pflag.NewFlagSet("download", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	conn.addFlags(flags)
	flags.StringVar(&format, "format", "md", "md, html, pdf or json")
	flags.StringVarP(&out, "out", "o", "", "output path; defaults to the server's filename, - for stdout")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("expected exactly one token argument")
	}
	api, err := conn.client(stderr)
	if err != nil {
		return err
	}
	path := "/v1/artifacts/" + url.PathEscape(flags.Arg(0)) + "/download?format=" + url.QueryEscape(format)
	resp, err := api.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == "-" {
		_, err := io.Copy(stdout, resp.Body)
		return err
	}
	if out == "" {
		out = attachmentName(resp.Header.Get("Content-Disposition"), "artifact."+format)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s (%d bytes)\n", out, n)
	return nil
}

// attachmentName extracts a safe base filename from a Content-Disposition
// header.
func attachmentName(header, fallback string) string {
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return fallback
	}
	name := filepath.Base(params["filename"])
	if name == "." || name == "/" || name == "" {
		return fallback
	}
	return name
}

func runSave(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var conn connection
	flags := pflag.NewFlagSet("save", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	conn.addFlags(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("expected exactly one token argument")
	}
	api, err := conn.client(stderr)
	if err != nil {
		return err
	}
	id, err := saveArtifact(ctx, api, flags.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "saved: %s\n", id)
	return nil
}

func runMintToken(_ context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		secret  string
		subject string
		typ     string
		locale  string
		ttl     time.Duration
	)
	flags := pflag.NewFlagSet("mint-token", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC secret shared with the API")
	flags.StringVar(&subject, "subject", "", "user id to embed")
	flags.StringVar(&typ, "type", middleware.TokenAccess, "token type: access or refresh")
	flags.StringVar(&locale, "locale", "", "locale claim (vi or en)")
	flags.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if secret == "" {
		return errors.New("--secret or JWT_SECRET is required")
	}
	if subject == "" {
		return errors.New("--subject is required")
	}
	if typ != middleware.TokenAccess && typ != middleware.TokenRefresh {
		return fmt.Errorf("unsupported --type %q", typ)
	}
	token, expires, err := middleware.IssueToken(secret, typ, subject, locale, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stderr, "expires %s\n", expires.UTC().Format(time.RFC3339))
	return nil
}
