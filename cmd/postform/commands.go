package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/spf13/cobra"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"

	"github.com/tendant/postform/pkg/config"
	"github.com/tendant/postform/pkg/postpolicy"
	"github.com/tendant/postform/pkg/postpolicy/bucketpolicy"
	"github.com/tendant/postform/pkg/postpolicy/storage/memory"
	"github.com/tendant/postform/pkg/utils"
)

// loadConfig reads the environment and fills missing credentials from the
// AWS default chain
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ResolveCredentials(cmd.Context()); err != nil {
		slog.Warn("No AWS credentials resolved", "err", err)
	}
	return cfg, nil
}

// NewUploadCommand creates the upload command
func NewUploadCommand() *cobra.Command {
	var name string
	var contentType string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file with a signed POST policy form",
		Long:  `Sign a fresh POST policy for the file and submit it to AWS_HOST/AWS_BUCKET once.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath := args[0]

			data, err := os.ReadFile(filePath)
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			if name == "" {
				name = utils.SanitizeFilename(filepath.Base(filePath))
			}
			if contentType == "" {
				contentType = detectContentType(name, data)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			client := postpolicy.NewClient(postpolicy.WithHTTPClient(&http.Client{Timeout: timeout}))
			resp, err := client.Upload(cmd.Context(), postpolicy.New(), cfg.UploadRequest(name, contentType, data))
			if err != nil {
				var statusErr *postpolicy.StatusError
				if errors.As(err, &statusErr) && len(statusErr.Response.Body) > 0 {
					slog.Debug("Upload rejected", "body", string(statusErr.Response.Body))
				}
				return fmt.Errorf("upload failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Upload successful!\n")
			fmt.Fprintf(out, "Status: %d %s\n", resp.StatusCode, resp.StatusText)
			fmt.Fprintf(out, "Key: %s\n", cfg.UploadRequest(name, contentType, nil).Key())
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Object filename (default: base name of the file)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type (default: detected)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Request timeout")

	return cmd
}

// NewSignCommand creates the sign command
func NewSignCommand() *cobra.Command {
	var name string
	var contentType string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print signed form fields for a browser upload",
		Long: `Print the target URL and signed form fields as JSON. The file is not
included; a browser posts it as the last field before the policy expires.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			signer := postpolicy.New(postpolicy.WithPolicyTTL(ttl))
			upload, err := signer.Presign(cfg.UploadRequest(name, contentType, nil))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(postpolicy.PolicyResponse{
				URL:    upload.URL,
				Key:    upload.Key,
				Fields: upload.Values(),
				Order:  postpolicy.FormFieldOrder,
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Object filename")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type")
	cmd.Flags().DurationVar(&ttl, "ttl", postpolicy.DefaultPolicyTTL, "Policy lifetime")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("content-type")

	return cmd
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var stub bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve signed upload forms over HTTP",
		Long: `Serve GET /policy, returning signed form fields for browser uploads.

With --stub, also serve POST /{bucket}, an in-memory bucket that verifies
POST policy submissions signed with AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			opts := []postpolicy.HandlersOption{postpolicy.WithHandlersLogger(slog.Default())}
			if cfg.JWTSecret != "" {
				opts = append(opts, postpolicy.WithTokenAuth(jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)))
			}
			if cfg.APIKeySHA256 != "" {
				apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
					APIKeys: map[string]string{"postform": cfg.APIKeySHA256},
				})
				if err != nil {
					return fmt.Errorf("failed to initialize API key middleware: %w", err)
				}
				opts = append(opts, postpolicy.WithPolicyMiddleware(apiKeyMiddleware))
			}
			if stub {
				creds := postpolicy.StaticCredentials{cfg.AccessKeyID: cfg.SecretAccessKey}
				opts = append(opts, postpolicy.WithStubBucket(postpolicy.NewVerifier(creds), memory.New()))
			}

			handlers := postpolicy.NewHandlers(postpolicy.New(), cfg.UploadRequest("", "", nil), opts...)

			server := app.DefaultApp()
			app.RoutesHealthz(server.R)
			app.RoutesHealthzReady(server.R)
			server.R.Mount("/", handlers.Routes())

			slog.Info("Serving signed upload forms", "target", cfg.TargetURL(), "stub", stub)
			server.Run()
			return nil
		},
	}

	cmd.Flags().BoolVar(&stub, "stub", false, "Serve an in-memory POST policy bucket at /{bucket}")

	return cmd
}

// NewBucketPolicyCommand creates the bucket-policy command
func NewBucketPolicyCommand() *cobra.Command {
	var referer string
	var apply bool

	cmd := &cobra.Command{
		Use:   "bucket-policy",
		Short: "Print or apply the bucket policy allowing browser uploads",
		Long: `Print the bucket policy that lets pages under --referer post uploads into
AWS_BUCKET. With --apply, put it on the bucket.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if referer == "" {
				referer = cfg.Referer
			}
			if referer == "" {
				referer = cfg.TargetURL()
			}

			doc, err := bucketpolicy.New(cfg.Bucket, referer)
			if err != nil {
				return err
			}

			if !apply {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				return enc.Encode(doc)
			}

			client, err := bucketpolicy.NewClient(cmd.Context(), bucketpolicy.ClientConfig{
				Region:          cfg.Region,
				AccessKeyID:     cfg.AccessKeyID,
				SecretAccessKey: cfg.SecretAccessKey,
				Endpoint:        cfg.Endpoint,
				UsePathStyle:    cfg.Endpoint != "",
			})
			if err != nil {
				return err
			}
			if err := bucketpolicy.Apply(cmd.Context(), client, cfg.Bucket, doc); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Bucket policy applied to %s\n", cfg.Bucket)
			return nil
		},
	}

	cmd.Flags().StringVar(&referer, "referer", "", "Page origin allowed to upload (default: POSTFORM_REFERER or the bucket URL)")
	cmd.Flags().BoolVar(&apply, "apply", false, "Put the policy on the bucket")

	return cmd
}

// detectContentType guesses from the extension, then the content
func detectContentType(name string, data []byte) string {
	if contentType := mime.TypeByExtension(filepath.Ext(name)); contentType != "" {
		return contentType
	}
	return http.DetectContentType(data)
}
