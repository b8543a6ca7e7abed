package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/newtron-network/provtest/pkg/util"
	"github.com/newtron-network/provtest/pkg/version"
)

// NX-API message types.
const (
	NXShowASCII = "cli_show_ascii"
	NXConf      = "cli_conf"
)

// NXAPIConfig describes a device NX-API endpoint.
type NXAPIConfig struct {
	URL      string // e.g. https://10.1.1.1/ins
	User     string
	Password string
	Insecure bool
	Timeout  time.Duration
}

// NXAPI issues device CLI over the NX-API ins_api JSON interface.
type NXAPI struct {
	cfg    NXAPIConfig
	client *http.Client
}

// NewNXAPI returns an NX-API transport. No connection is made until the
// first command.
func NewNXAPI(cfg NXAPIConfig) *NXAPI {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultSSHTimeout
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // lab devices use self-signed certs
	}
	return &NXAPI{cfg: cfg, client: &http.Client{Transport: tr, Timeout: timeout}}
}

type insAPIRequest struct {
	InsAPI insAPIBody `json:"ins_api"`
}

type insAPIBody struct {
	Version      string `json:"version"`
	Type         string `json:"type"`
	Chunk        string `json:"chunk"`
	SID          string `json:"sid"`
	Input        string `json:"input"`
	OutputFormat string `json:"output_format"`
}

// Run sends cmd as a show command unless it starts with "conf", in which
// case the rest is sent as configuration. A failed command yields exit
// code 1 and an "Error:" line per failure in the output.
func (n *NXAPI) Run(ctx context.Context, cmd string, _ io.Reader) (*Result, error) {
	msgType := NXShowASCII
	trimmed := strings.TrimSpace(cmd)
	if rest, ok := cutConfPrefix(trimmed); ok {
		msgType, trimmed = NXConf, rest
	}
	return n.send(ctx, msgType, trimmed)
}

// Show runs a show command and returns its ASCII output.
func (n *NXAPI) Show(ctx context.Context, cmd string) (*Result, error) {
	return n.send(ctx, NXShowASCII, cmd)
}

// Config applies configuration commands in order.
func (n *NXAPI) Config(ctx context.Context, cmds []string) (*Result, error) {
	return n.send(ctx, NXConf, strings.Join(cmds, " ; "))
}

func (n *NXAPI) send(ctx context.Context, msgType, input string) (*Result, error) {
	body, err := json.Marshal(insAPIRequest{InsAPI: insAPIBody{
		Version:      "1.0",
		Type:         msgType,
		Chunk:        "0",
		SID:          "1",
		Input:        input,
		OutputFormat: "json",
	}})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &util.TransportError{Op: "nxapi", Host: n.cfg.URL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.SetBasicAuth(n.cfg.User, n.cfg.Password)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, &util.TransportError{Op: "nxapi", Host: n.cfg.URL, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &util.TransportError{Op: "nxapi", Host: n.cfg.URL, Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &util.TransportError{Op: "nxapi", Host: n.cfg.URL, Err: fmt.Errorf("authentication failed")}
	}
	if !gjson.ValidBytes(raw) {
		return nil, &util.TransportError{Op: "nxapi", Host: n.cfg.URL, Err: fmt.Errorf("HTTP %d: non-JSON response", resp.StatusCode)}
	}

	res := ParseInsAPI(raw)
	util.WithTarget(n.cfg.URL).Debugf("nxapi %s %q exit %d", msgType, input, res.ExitCode)
	return res, nil
}

// ParseInsAPI folds an ins_api response into a Result. Outputs are
// concatenated in order; any output whose code is not 200 sets exit code 1.
func ParseInsAPI(raw []byte) *Result {
	res := &Result{}
	var b strings.Builder
	output := gjson.GetBytes(raw, "ins_api.outputs.output")
	if output.IsArray() {
		for _, out := range output.Array() {
			appendOutput(&b, res, out)
		}
	} else if output.IsObject() {
		appendOutput(&b, res, output)
	}
	res.Output = b.String()
	return res
}

func appendOutput(b *strings.Builder, res *Result, out gjson.Result) {
	if body := out.Get("body"); body.Exists() {
		if body.Type == gjson.String {
			b.WriteString(body.String())
		} else {
			b.WriteString(body.Raw)
		}
	}
	if code := out.Get("code").String(); code != "" && code != "200" {
		res.ExitCode = 1
		msg := out.Get("msg").String()
		if cli := out.Get("clierror").String(); cli != "" {
			msg += ": " + strings.TrimSpace(cli)
		}
		fmt.Fprintf(b, "Error: %s (%s): %s\n", out.Get("input").String(), code, msg)
	}
}

func cutConfPrefix(cmd string) (string, bool) {
	for _, p := range []string{"configure terminal", "conf t", "config t", "conf"} {
		if strings.HasPrefix(cmd, p+" ;") || cmd == p {
			return strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(cmd, p), " ;")), true
		}
	}
	return cmd, false
}

// Close releases idle connections.
func (n *NXAPI) Close() error {
	n.client.CloseIdleConnections()
	return nil
}
