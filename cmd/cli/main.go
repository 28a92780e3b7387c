// Command sitecfgctl inspects and edits site configuration from the shell.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	insecurecreds "google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/and161185/sitecfg/internal/api/configv1"
)

// EnvToken supplies the bearer token when --token is not given.
const EnvToken = "SITECFG_TOKEN"

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "sitecfg")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "sitecfg")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (run `sitecfgctl token --save` or pass --token)")
	}
	return tf.AccessToken, nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token     string
	plaintext bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return !b.plaintext }

func loadTLS(caPath string, insecure bool) (credentials.TransportCredentials, error) {
	if insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// globals are the connection flags shared by online commands.
type globals struct {
	addr      string
	caPath    string
	insecure  bool
	plaintext bool
	token     string
	timeout   time.Duration
}

func (g *globals) bearer() (string, error) {
	if g.token != "" {
		return g.token, nil
	}
	if v := os.Getenv(EnvToken); v != "" {
		return v, nil
	}
	return loadToken()
}

func (g *globals) dial() (*grpc.ClientConn, *configv1.ConfigServiceClient, error) {
	tok, err := g.bearer()
	if err != nil {
		return nil, nil, err
	}
	var creds credentials.TransportCredentials
	if g.plaintext {
		creds = insecurecreds.NewCredentials()
	} else if creds, err = loadTLS(g.caPath, g.insecure); err != nil {
		return nil, nil, err
	}
	cc, err := grpc.NewClient(g.addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(bearerCreds{token: tok, plaintext: g.plaintext}),
	)
	if err != nil {
		return nil, nil, err
	}
	return cc, configv1.NewConfigServiceClient(cc), nil
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printProto(w io.Writer, m proto.Message) error {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "sitecfgctl",
		Short:         "Inspect, diff and restore versioned site configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.addr, "addr", "localhost:8443", "server address")
	pf.StringVar(&g.caPath, "cacert", "", "CA cert (PEM)")
	pf.BoolVar(&g.insecure, "insecure", false, "skip cert verify (dev)")
	pf.BoolVar(&g.plaintext, "plaintext", false, "connect without TLS (dev servers)")
	pf.StringVar(&g.token, "token", "", "bearer token (env "+EnvToken+")")
	pf.DurationVar(&g.timeout, "timeout", 30*time.Second, "per-command RPC timeout")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "sitecfgctl %s (%s)\n", version, buildDate)
			},
		},
		newDiffCmd(),
		newPatchCmd(),
		newTokenCmd(),
	)
	root.AddCommand(newOnlineCmds(g)...)
	return root
}

// main runs the command tree and exits non-zero on failure.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fail(err)
	}
}
