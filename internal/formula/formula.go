package formula

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"
)

// DependencyTag classifies a dependency or requirement edge.
type DependencyTag string

const (
	TagBuild       DependencyTag = "build"
	TagRun         DependencyTag = "run"
	TagOptional    DependencyTag = "optional"
	TagRecommended DependencyTag = "recommended"
	TagUniversal   DependencyTag = "universal"
	TagTest        DependencyTag = "test"
)

// Option is a named build toggle, optionally carrying a value ("name=value").
// Equality is by name only.
type Option struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
}

func (o Option) String() string {
	if o.Value == "" {
		return o.Name
	}
	return o.Name + "=" + o.Value
}

// Options is an insertion-ordered set of Option.
type Options []Option

// Has reports whether name is present, ignoring any value.
func (o Options) Has(name string) bool {
	for _, opt := range o {
		if opt.Name == name {
			return true
		}
	}
	return false
}

// Get returns the option with the given name, if present.
func (o Options) Get(name string) (Option, bool) {
	for _, opt := range o {
		if opt.Name == name {
			return opt, true
		}
	}
	return Option{}, false
}

// Union returns a new set containing the receiver's options followed by
// any of other's options not already present by name.
func (o Options) Union(other Options) Options {
	out := make(Options, len(o), len(o)+len(other))
	copy(out, o)
	for _, opt := range other {
		if !out.Has(opt.Name) {
			out = append(out, opt)
		}
	}
	return out
}

// BuildOptions pairs the effective args a user passed with the formula's
// declared option set, yielding with?/without? predicates used to prune
// optional and recommended dependency edges.
type BuildOptions struct {
	Args     Options
	Declared Options
}

// With reports whether name was explicitly requested.
func (b BuildOptions) With(name string) bool {
	return b.Args.Has("with-" + name) || b.Args.Has(name)
}

// Without reports whether name was explicitly suppressed or was not
// explicitly requested; the Declared set is not consulted.
func (b BuildOptions) Without(name string) bool {
	if b.Args.Has("without-" + name) {
		return true
	}
	return !b.With(name)
}

// Dependency is one edge in a formula's dependency graph: the target
// formula name, its tag set, and any options to pass to its build.
type Dependency struct {
	Name    string          `yaml:"name" json:"name"`
	Tags    []DependencyTag `yaml:"tags,omitempty" json:"tags,omitempty"`
	Options Options         `yaml:"options,omitempty" json:"options,omitempty"`
}

// HasTag reports whether the dependency carries the given tag.
func (d Dependency) HasTag(tag DependencyTag) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Requirement is a named precondition, optionally satisfiable by installing
// a default formula instead of failing.
type Requirement struct {
	Name           string          `yaml:"name" json:"name"`
	Tags           []DependencyTag `yaml:"tags,omitempty" json:"tags,omitempty"`
	Fatal          bool            `yaml:"fatal,omitempty" json:"fatal,omitempty"`
	DefaultFormula string          `yaml:"default_formula,omitempty" json:"default_formula,omitempty"`
	Satisfied      func(BuildOptions) bool `yaml:"-" json:"-"`
}

// HasTag reports whether the requirement carries the given tag.
func (r Requirement) HasTag(tag DependencyTag) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasDefaultFormula reports whether an unsatisfied requirement can be
// materialized into a dependency edge instead of failing outright.
func (r Requirement) HasDefaultFormula() bool {
	return r.DefaultFormula != ""
}

// ToDependency projects a defaulted requirement into a dependency edge.
func (r Requirement) ToDependency() Dependency {
	return Dependency{Name: r.DefaultFormula, Tags: r.Tags}
}

// Tab is the per-keg install receipt: how a keg came to be installed.
type Tab struct {
	UsedOptions      Options `json:"used_options"`
	Compiler         string  `json:"compiler"`
	Tap              string  `json:"tap"`
	PouredFromBottle bool    `json:"poured_from_bottle"`
	InstalledAt      time.Time `json:"time"`
}

// BottleFile is one platform's prebuilt archive.
type BottleFile struct {
	Cellar string `yaml:"cellar,omitempty" json:"cellar,omitempty"`
	URL    string `yaml:"url" json:"url"`
	SHA256 string `yaml:"sha256" json:"sha256"`
}

// BottleSpec is the bottle block for one channel (stable or head).
type BottleSpec struct {
	Rebuild int                   `yaml:"rebuild,omitempty" json:"rebuild,omitempty"`
	RootURL string                `yaml:"root_url,omitempty" json:"root_url,omitempty"`
	Files   map[string]BottleFile `yaml:"files" json:"files"`
}

// Bottle is a formula's prebuilt-binary descriptor.
type Bottle struct {
	Stable *BottleSpec `yaml:"stable,omitempty" json:"stable,omitempty"`
	Head   *BottleSpec `yaml:"head,omitempty" json:"head,omitempty"`

	// OnlyIf names an external hook condition gating eligibility
	// (section 4.1's "external hook claims a bottle").
	OnlyIf string `yaml:"only_if,omitempty" json:"only_if,omitempty"`
}

// Head describes the HEAD-channel source location.
type Head struct {
	URL    string `yaml:"url" json:"url"`
	Branch string `yaml:"branch,omitempty" json:"branch,omitempty"`
}

// Formula is a declarative package description: identity, dependency
// graph, requirements, options, and the install-path hints the installer
// core consumes. Formula loading/parsing from taps lives in internal/tap;
// this type is the wire shape both produce and consume.
type Formula struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Homepage    string `yaml:"homepage,omitempty" json:"homepage,omitempty"`
	Description string `yaml:"desc,omitempty" json:"desc,omitempty"`
	License     string `yaml:"license,omitempty" json:"license,omitempty"`
	URL         string `yaml:"url,omitempty" json:"url,omitempty"`
	SHA256      string `yaml:"sha256,omitempty" json:"sha256,omitempty"`

	Deps         []Dependency  `yaml:"deps,omitempty" json:"deps,omitempty"`
	Requirements []Requirement `yaml:"requirements,omitempty" json:"requirements,omitempty"`
	Options      Options       `yaml:"options,omitempty" json:"options,omitempty"`
	Conflicts    []string      `yaml:"conflicts,omitempty" json:"conflicts,omitempty"`

	Bottle          *Bottle `yaml:"bottle,omitempty" json:"bottle,omitempty"`
	Plist           string  `yaml:"plist,omitempty" json:"plist,omitempty"`
	PostInstallHook bool    `yaml:"post_install,omitempty" json:"post_install,omitempty"`

	KegOnly       bool   `yaml:"keg_only,omitempty" json:"keg_only,omitempty"`
	KegOnlyReason string `yaml:"keg_only_reason,omitempty" json:"keg_only_reason,omitempty"`

	Head  *Head `yaml:"head,omitempty" json:"head,omitempty"`
	Devel bool  `yaml:"devel,omitempty" json:"devel,omitempty"`

	Deprecated bool `yaml:"deprecated,omitempty" json:"deprecated,omitempty"`
	Disabled   bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	// Runtime/resolution metadata, not part of the declared formula body.
	Tap      string    `yaml:"tap,omitempty" json:"tap,omitempty"`
	Path     string    `yaml:"path,omitempty" json:"path,omitempty"`
	Modified bool      `yaml:"-" json:"-"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// IsValid checks the formula's declared data for installability.
func (f *Formula) IsValid() error {
	if f.Name == "" {
		return fmt.Errorf("formula name is required")
	}
	if f.Version == "" {
		return fmt.Errorf("formula version is required")
	}
	if f.URL == "" && f.Head == nil {
		return fmt.Errorf("formula must have either url or head")
	}
	if f.URL != "" && f.SHA256 == "" {
		return fmt.Errorf("formula with url must have sha256")
	}
	if f.Version != "HEAD" {
		if _, err := version.NewVersion(f.Version); err != nil {
			return fmt.Errorf("invalid version format: %w", err)
		}
	}
	return nil
}

// FullName returns the tap-qualified name, omitting the default tap.
func (f *Formula) FullName() string {
	if f.Tap != "" && f.Tap != "homebrew/core" {
		return f.Tap + "/" + f.Name
	}
	return f.Name
}

// Rack is the parent directory of all installed versions of this formula.
func (f *Formula) Rack(cellar string) string {
	return filepath.Join(cellar, f.Name)
}

// Prefix is this formula's keg directory.
func (f *Formula) Prefix(cellar string) string {
	return filepath.Join(f.Rack(cellar), f.Version)
}

// OptPrefix is the stable symlink alias for the currently-active keg; it
// also serves as this formula's linked_keg sentinel.
func (f *Formula) OptPrefix(prefix string) string {
	return filepath.Join(prefix, "opt", f.Name)
}

// LinkedKeg is the sentinel symlink marking the active version.
func (f *Formula) LinkedKeg(prefix string) string {
	return f.OptPrefix(prefix)
}

// BottlePrefix is the staging subtree inside a freshly extracted bottle,
// prior to etc/var relocation into the shared prefix.
func (f *Formula) BottlePrefix(cellar string) string {
	return f.Prefix(cellar)
}

// Logs is this formula's build log directory.
func (f *Formula) Logs(logsRoot string) string {
	return filepath.Join(logsRoot, f.Name)
}

// Var is the shared prefix's var tree, used for etc/var relocation.
func (f *Formula) Var(prefix string) string {
	return filepath.Join(prefix, "var")
}

// InstallReceiptPath is the tab sidecar path for this formula's keg.
func (f *Formula) InstallReceiptPath(cellar string) string {
	return filepath.Join(f.Prefix(cellar), "INSTALL_RECEIPT.json")
}

// HasOption reports whether the formula declares the named option.
func (f *Formula) HasOption(name string) bool {
	return f.Options.Has(name)
}

// GetDependency returns the declared dependency edge with the given name.
func (f *Formula) GetDependency(name string) (Dependency, bool) {
	for _, d := range f.Deps {
		if d.Name == name {
			return d, true
		}
	}
	return Dependency{}, false
}

// BottleFileFor returns the bottle file descriptor for platform, if any.
func (f *Formula) BottleFileFor(platform string) (BottleFile, bool) {
	if f.Bottle == nil || f.Bottle.Stable == nil {
		return BottleFile{}, false
	}
	file, ok := f.Bottle.Stable.Files[platform]
	return file, ok
}

// HasBottle reports whether a bottle file exists for platform.
func (f *Formula) HasBottle(platform string) bool {
	_, ok := f.BottleFileFor(platform)
	return ok
}

// IsHeadOnly reports whether the formula has no stable channel.
func (f *Formula) IsHeadOnly() bool {
	return f.URL == "" && f.Head != nil
}

// ValidateName checks a formula name for the naming convention taps use.
func ValidateName(name string) error {
	re := regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	if !re.MatchString(name) {
		return fmt.Errorf("invalid formula name: %s", name)
	}
	reserved := []string{"brew", "brewkeg", "homebrew", "core", "test"}
	for _, r := range reserved {
		if name == r {
			return fmt.Errorf("formula name %q is reserved", name)
		}
	}
	return nil
}

// Parse parses a formula from YAML data.
func Parse(data []byte) (*Formula, error) {
	var f Formula
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse formula: %w", err)
	}
	if err := f.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid formula: %w", err)
	}
	return &f, nil
}

// ToYAML serializes the formula back to YAML (used by tests that
// round-trip fixtures).
func (f *Formula) ToYAML() ([]byte, error) {
	return yaml.Marshal(f)
}

// Compare orders two formulas by semantic version, falling back to a
// lexical compare when either version fails to parse (e.g. "HEAD").
func (f *Formula) Compare(other *Formula) int {
	v1, err1 := version.NewVersion(f.Version)
	v2, err2 := version.NewVersion(other.Version)
	if err1 != nil || err2 != nil {
		return strings.Compare(f.Version, other.Version)
	}
	return v1.Compare(v2)
}

func (f *Formula) IsNewer(other *Formula) bool      { return f.Compare(other) > 0 }
func (f *Formula) IsOlder(other *Formula) bool      { return f.Compare(other) < 0 }
func (f *Formula) IsSameVersion(o *Formula) bool     { return f.Compare(o) == 0 }
