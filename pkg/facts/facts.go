// Package facts discovers and memoizes target identity: operating system,
// hardware platform, firmware version, system image, and VDC membership.
//
// A Context is created once per run and handed to the runner; nothing here
// is global.
package facts

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/newtron-network/provtest/pkg/util"
)

// Source is what the Context queries. target.Target implements it.
type Source interface {
	// FactsJSON returns the facts document ("puppet facts --render-as json",
	// or "puppet device --facts" in agentless mode).
	FactsJSON(ctx context.Context) (string, error)
	// Show runs a raw device show command and returns its output.
	Show(ctx context.Context, cmd string) (string, error)
}

// Snapshot is the set of discovered facts.
type Snapshot struct {
	OS           string `json:"os"`
	HardwareType string `json:"hardware_type"`
	PID          string `json:"pid"`
	Version      string `json:"version"`
	SystemImage  string `json:"system_image"`
	Platform     string `json:"platform"`
	ImageTrain   string `json:"image_train"`
	VDC          string `json:"vdc,omitempty"`
	VDCID        int    `json:"vdc_id,omitempty"`
}

// Fact paths in the facts document.
const (
	pathOS          = "operatingsystem"
	pathHardware    = "cisco.hardware.type"
	pathVersion     = "cisco.images.full_version"
	pathSystemImage = "cisco.images.system_image"
	pathPID         = "cisco.inventory.chassis.pid"
)

// Context memoizes facts for the lifetime of a run.
type Context struct {
	src Source

	loaded bool
	snap   Snapshot

	vdcLoaded bool

	iface string
}

// New returns a Context that queries src lazily.
func New(src Source) *Context {
	return &Context{src: src}
}

// Static returns a Context with fixed facts and no source.
func Static(s Snapshot) *Context {
	if s.Platform == "" {
		s.Platform = Classify(s.PID, s.HardwareType, s.Version)
	}
	if s.ImageTrain == "" {
		s.ImageTrain = ImageTrain(s.Version)
	}
	return &Context{loaded: true, vdcLoaded: true, snap: s}
}

// Load queries the facts document once and returns the snapshot.
func (c *Context) Load(ctx context.Context) (Snapshot, error) {
	if c.loaded {
		return c.snap, nil
	}
	if c.src == nil {
		return Snapshot{}, fmt.Errorf("facts: %w", util.ErrNotConnected)
	}
	raw, err := c.src.FactsJSON(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query facts: %w", err)
	}
	snap, err := Parse(raw)
	if err != nil {
		return Snapshot{}, err
	}
	c.snap = snap
	c.loaded = true
	util.Logger.WithFields(logrus.Fields{
		"os":       snap.OS,
		"platform": snap.Platform,
		"version":  snap.Version,
	}).Debug("Discovered target facts")
	return c.snap, nil
}

// Snapshot returns whatever has been loaded so far.
func (c *Context) Snapshot() Snapshot {
	return c.snap
}

// Platform returns the classified platform, loading facts if needed.
func (c *Context) Platform(ctx context.Context) (string, error) {
	s, err := c.Load(ctx)
	return s.Platform, err
}

// Version returns the firmware version string, loading facts if needed.
func (c *Context) Version(ctx context.Context) (string, error) {
	s, err := c.Load(ctx)
	return s.Version, err
}

var vdcCurrent = regexp.MustCompile(`[Cc]urrent vdc is (\d+) - vdc name is (\S+)`)

// VDC returns the current VDC name on platforms that have them (n7k); empty
// elsewhere. Queried once.
func (c *Context) VDC(ctx context.Context) (string, error) {
	if c.vdcLoaded {
		return c.snap.VDC, nil
	}
	s, err := c.Load(ctx)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(s.Platform, "n7k") {
		c.vdcLoaded = true
		return "", nil
	}
	out, err := c.src.Show(ctx, "show vdc current-vdc")
	if err != nil {
		return "", fmt.Errorf("query vdc: %w", err)
	}
	if m := vdcCurrent.FindStringSubmatch(out); m != nil {
		c.snap.VDCID, _ = strconv.Atoi(m[1])
		c.snap.VDC = m[2]
	}
	c.vdcLoaded = true
	return c.snap.VDC, nil
}

// DefaultVDC reports whether the target runs in the default VDC (id 1), or
// has no VDCs at all.
func (c *Context) DefaultVDC(ctx context.Context) (bool, error) {
	if _, err := c.VDC(ctx); err != nil {
		return false, err
	}
	return c.snap.VDCID <= 1, nil
}

// Interface returns the cached test interface, if one was discovered.
func (c *Context) Interface() string {
	return c.iface
}

// SetInterface caches the test interface for later cases.
func (c *Context) SetInterface(name string) {
	c.iface = name
}

// Parse extracts a Snapshot from a facts document. Both the bare facts map
// and the {"name":..., "values":{...}} envelope are accepted.
func Parse(raw string) (Snapshot, error) {
	if !gjson.Valid(raw) {
		return Snapshot{}, fmt.Errorf("facts: invalid JSON document")
	}
	doc := gjson.Parse(raw)
	if v := doc.Get("values"); v.IsObject() {
		doc = v
	}
	s := Snapshot{
		OS:           doc.Get(pathOS).String(),
		HardwareType: doc.Get(pathHardware).String(),
		PID:          doc.Get(pathPID).String(),
		Version:      doc.Get(pathVersion).String(),
		SystemImage:  doc.Get(pathSystemImage).String(),
	}
	if s.OS == "" {
		return Snapshot{}, fmt.Errorf("facts: %s missing", pathOS)
	}
	s.Platform = Classify(s.PID, s.HardwareType, s.Version)
	s.ImageTrain = ImageTrain(s.Version)
	return s, nil
}

var (
	pidFamily      = regexp.MustCompile(`(?i)^N(\d)K-`)
	hardwareFamily = regexp.MustCompile(`(?i)Nexus\s*(\d)\d*`)
	exPID          = regexp.MustCompile(`(?i)-(EX|FX\d?|GX)\b`)
	trainRe        = regexp.MustCompile(`\)([A-Z]+\d+)\(|\.([A-Z]+\d+)(\.|$)`)
)

// Classify maps chassis PID, hardware type and version to a platform name:
// n3k, n5k, n6k, n7k, n9k, n9k-ex, n3k-f or n9k-f. Empty if unknown.
func Classify(pid, hardwareType, version string) string {
	family := ""
	if m := pidFamily.FindStringSubmatch(pid); m != nil {
		family = m[1]
	} else if m := hardwareFamily.FindStringSubmatch(hardwareType); m != nil {
		family = m[1]
	}
	train := ImageTrain(version)

	switch family {
	case "3", "9":
		base := "n" + family + "k"
		if strings.HasPrefix(train, "F") {
			return base + "-f"
		}
		if family == "9" && exPID.MatchString(pid) {
			return "n9k-ex"
		}
		return base
	case "5", "6", "7":
		return "n" + family + "k"
	}
	return ""
}

// ImageTrain returns the image train of a version: "I7" for 7.0(3)I7(4),
// "F3" for 7.0(3)F3(1). Empty when the version has no train.
func ImageTrain(version string) string {
	m := trainRe.FindStringSubmatch(version)
	if m == nil {
		return ""
	}
	return m[1] + m[2]
}
