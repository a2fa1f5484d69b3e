package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"edugen/internal/domain"
	"edugen/internal/stream"
)

type accepted struct {
	JobID     string `json:"job_id"`
	EventsURL string `json:"events_url"`
}

func runGenerate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		conn   connection
		kind   string
		model  string
		params []string
		file   string
		out    string
		save   bool
		quiet  bool
	)
	flags := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	conn.addFlags(flags)
	flags.StringVarP(&kind, "kind", "k", "", "artifact kind: quiz, rubric or lesson_plan")
	flags.StringVar(&model, "model", "", "model override")
	flags.StringArrayVarP(&params, "param", "p", nil, "generation parameter as key=value (repeatable)")
	flags.StringVarP(&file, "file", "f", "", "source document to attach (PDF, DOCX or text)")
	flags.StringVarP(&out, "out", "o", "", "write the generated JSON here")
	flags.BoolVar(&save, "save", false, "save the artifact to your account when done")
	flags.BoolVarP(&quiet, "quiet", "q", false, "hide progress events")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if kind == "" {
		return errors.New("--kind is required")
	}
	fields := map[string]string{"kind": kind}
	if model != "" {
		fields["model"] = model
	}
	for _, p := range params {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("--param %q is not key=value", p)
		}
		fields[strings.TrimSpace(k)] = v
	}

	api, err := conn.client(stderr)
	if err != nil {
		return err
	}
	contentType, body, err := generationForm(fields, file)
	if err != nil {
		return err
	}
	resp, err := api.do(ctx, http.MethodPost, "/v1/generations", contentType, body)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	var job accepted
	if err := decodeBody(resp, &job); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(stderr, "job %s accepted\n", job.JobID)
	}

	final, text, err := follow(ctx, api, job.EventsURL, quiet, stderr)
	if err != nil {
		return err
	}
	if out != "" {
		if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
			return err
		}
	}
	token := final.PayloadString("token")
	fmt.Fprintf(stdout, "token: %s\n", token)
	if u := final.PayloadString("download_url"); u != "" {
		fmt.Fprintf(stdout, "download: %s\n", u)
	}
	if save {
		id, err := saveArtifact(ctx, api, token)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved: %s\n", id)
	}
	return nil
}

func generationForm(fields map[string]string, file string) (string, io.Reader, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", nil, err
		}
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", nil, err
		}
		fw, err := mw.CreateFormFile("file", filepath.Base(file))
		if err != nil {
			return "", nil, err
		}
		if _, err := fw.Write(data); err != nil {
			return "", nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return "", nil, err
	}
	return mw.FormDataContentType(), &buf, nil
}

// follow reads the job's events until a terminal one and returns it with
// the reassembled chunk text.
func follow(ctx context.Context, api *apiClient, eventsURL string, quiet bool, stderr io.Writer) (domain.StreamEvent, string, error) {
	resp, err := api.do(ctx, http.MethodGet, eventsURL, "", nil)
	if err != nil {
		return domain.StreamEvent{}, "", err
	}
	if err := checkStatus(resp); err != nil {
		return domain.StreamEvent{}, "", err
	}
	defer resp.Body.Close()

	var re stream.Reassembler
	dec := stream.NewDecoder(resp.Body)
	for {
		ev, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("stream ended before the job finished")
			}
			return domain.StreamEvent{}, "", err
		}
		re.Add(ev)
		switch ev.Kind {
		case domain.EventProgress:
			if !quiet {
				fmt.Fprintf(stderr, "[%s] %s\n", ev.PayloadString("stage"), ev.PayloadString("state"))
			}
		case domain.EventError:
			return ev, re.Text(), fmt.Errorf("generation failed: %s: %s", ev.PayloadString("code"), ev.PayloadString("message"))
		case domain.EventDone:
			return ev, re.Text(), nil
		}
	}
}

func saveArtifact(ctx context.Context, api *apiClient, token string) (string, error) {
	resp, err := api.do(ctx, http.MethodPost, "/v1/artifacts/"+token+"/save", "", nil)
	if err != nil {
		return "", err
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	var out struct {
		RecordID string `json:"record_id"`
	}
	if err := decodeBody(resp, &out); err != nil {
		return "", err
	}
	return out.RecordID, nil
}
