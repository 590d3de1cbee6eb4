package tap

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/brewkeg/core/internal/config"
	"github.com/brewkeg/core/internal/errors"
	"github.com/brewkeg/core/internal/formula"
	"github.com/brewkeg/core/internal/logger"
)

// Tap represents a Homebrew-style tap: a git repository of formulae.
type Tap struct {
	Name       string `json:"name"`
	FullName   string `json:"full_name"`
	User       string `json:"user"`
	Repository string `json:"repository"`
	Remote     string `json:"remote"`
	Path       string `json:"path"`
	Installed  bool   `json:"installed"`
	Official   bool   `json:"official"`
	Formulae   int    `json:"formulae_count"`
}

// Manager resolves formulae across installed taps and clones/updates them.
type Manager struct {
	cfg *config.Config
}

// ProgressWriter adapts git's progress stream into the package logger.
type ProgressWriter struct {
	prefix string
}

func (pw *ProgressWriter) Write(p []byte) (n int, err error) {
	message := string(p)
	if strings.TrimSpace(message) != "" {
		logger.Debug("%s: %s", pw.prefix, strings.TrimSpace(message))
	}
	return len(p), nil
}

// NewManager creates a new tap manager.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{cfg: cfg}
}

// ListTaps returns all installed taps.
func (m *Manager) ListTaps() ([]*Tap, error) {
	tapsDir := filepath.Join(m.cfg.HomebrewRepository, "Library", "Taps")

	var taps []*Tap

	err := filepath.WalkDir(tapsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() || path == tapsDir {
			return nil
		}
		if m.isTapDirectory(path) {
			t, err := m.loadTap(path)
			if err != nil {
				logger.Warn("Failed to load tap at %s: %v", path, err)
				return nil
			}
			taps = append(taps, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk taps directory: %w", err)
	}

	sort.Slice(taps, func(i, j int) bool { return taps[i].Name < taps[j].Name })
	return taps, nil
}

// GetTap returns a specific tap by name.
func (m *Manager) GetTap(name string) (*Tap, error) {
	tapPath := m.getTapPath(name)
	if !m.isTapDirectory(tapPath) {
		return nil, fmt.Errorf("tap %s not found", name)
	}
	return m.loadTap(tapPath)
}

// TapOptions controls AddTap behavior.
type TapOptions struct {
	Force   bool
	Quiet   bool
	Shallow bool
	Branch  string
}

// AddTap clones a new tap into the Taps directory.
func (m *Manager) AddTap(name, remote string, options *TapOptions) error {
	if options == nil {
		options = &TapOptions{}
	}

	logger.Progress("Tapping %s", name)

	if err := m.validateTapName(name); err != nil {
		return fmt.Errorf("invalid tap name: %w", err)
	}

	if t, _ := m.GetTap(name); t != nil && t.Installed {
		if !options.Force {
			return fmt.Errorf("tap %s already tapped", name)
		}
		logger.Info("Tap %s already exists, forcing re-tap", name)
	}

	if remote == "" {
		remote = m.getDefaultRemote(name)
	}

	tapPath := m.getTapPath(name)
	if err := os.MkdirAll(filepath.Dir(tapPath), 0755); err != nil {
		return fmt.Errorf("failed to create tap directory: %w", err)
	}

	logger.Step("Cloning %s", remote)
	progressWriter := &ProgressWriter{prefix: fmt.Sprintf("Clone %s", name)}
	cloneOptions := &git.CloneOptions{
		URL:      remote,
		Progress: progressWriter,
	}
	if options.Shallow {
		cloneOptions.Depth = 1
	}
	if options.Branch != "" {
		cloneOptions.ReferenceName = plumbing.ReferenceName("refs/heads/" + options.Branch)
		cloneOptions.SingleBranch = true
	}

	if _, err := git.PlainClone(tapPath, false, cloneOptions); err != nil {
		return fmt.Errorf("failed to clone tap: %w", err)
	}

	if err := m.verifyTap(tapPath); err != nil {
		_ = os.RemoveAll(tapPath)
		return fmt.Errorf("tap verification failed: %w", err)
	}

	logger.Success("Tapped %s (%d formulae)", name, m.countFormulae(tapPath))
	return nil
}

// RemoveTap removes an installed tap.
func (m *Manager) RemoveTap(name string, options *TapOptions) error {
	if options == nil {
		options = &TapOptions{}
	}

	logger.Progress("Untapping %s", name)

	t, err := m.GetTap(name)
	if err != nil {
		return fmt.Errorf("tap %s not found", name)
	}
	if !t.Installed {
		return fmt.Errorf("tap %s is not installed", name)
	}

	if !options.Force {
		installed, err := m.getInstalledFormulaeFromTap(t)
		if err != nil {
			return fmt.Errorf("failed to check installed formulae: %w", err)
		}
		if len(installed) > 0 {
			return fmt.Errorf("tap %s has installed formulae: %s\nUse --force to remove anyway",
				name, strings.Join(installed, ", "))
		}
	}

	if err := os.RemoveAll(t.Path); err != nil {
		return fmt.Errorf("failed to remove tap directory: %w", err)
	}

	logger.Success("Untapped %s", name)
	return nil
}

// UpdateTap pulls the latest commits for an installed tap.
func (m *Manager) UpdateTap(name string) error {
	logger.Progress("Updating tap %s", name)

	t, err := m.GetTap(name)
	if err != nil {
		return fmt.Errorf("tap %s not found", name)
	}
	if !t.Installed {
		return fmt.Errorf("tap %s is not installed", name)
	}

	repo, err := git.PlainOpen(t.Path)
	if err != nil {
		return fmt.Errorf("failed to open tap repository: %w", err)
	}

	workTree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get working tree: %w", err)
	}

	progressWriter := &ProgressWriter{prefix: fmt.Sprintf("Update %s", name)}
	err = workTree.Pull(&git.PullOptions{RemoteName: "origin", Progress: progressWriter})
	if err == git.NoErrAlreadyUpToDate {
		logger.Info("Tap %s is already up to date", name)
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to update tap: %w", err)
	}

	logger.Success("Updated tap %s", name)
	return nil
}

// Resolve loads a formula by name. A tap-qualified name (user/repo/name)
// is looked up in that tap, which is auto-tapped once when missing; a miss
// there yields TapFormulaUnavailable. A bare name is looked up across all
// installed taps in name order, then homebrew/core is auto-tapped once and
// retried. The returned error names only the formula (and tap); it does
// not name the dependent that asked for it.
func (m *Manager) Resolve(name string) (*formula.Formula, error) {
	if strings.Contains(name, "/") {
		parts := strings.SplitN(name, "/", 2)
		tapName, formulaName := strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1]
		t, err := m.GetTap(tapName)
		if err != nil {
			if tapErr := m.AddTap(tapName, "", &TapOptions{Quiet: true}); tapErr != nil {
				return nil, errors.Wrap(fmt.Errorf("auto-tap failed: %w", tapErr), "formula resolution", formulaName)
			}
			t, err = m.GetTap(tapName)
			if err != nil {
				return nil, errors.NewTapFormulaUnavailableError(formulaName, tapName)
			}
		}
		f, err := t.GetFormula(formulaName)
		if err != nil {
			return nil, errors.NewTapFormulaUnavailableError(formulaName, tapName)
		}
		return f, nil
	}

	taps, err := m.ListTaps()
	if err != nil {
		return nil, fmt.Errorf("failed to list taps: %w", err)
	}
	for _, t := range taps {
		if f, err := t.GetFormula(name); err == nil {
			return f, nil
		}
	}

	// Cold miss: auto-tap the default org once, then retry.
	if tapErr := m.AddTap("homebrew/core", "", &TapOptions{Quiet: true}); tapErr == nil {
		if t, err := m.GetTap("homebrew/core"); err == nil {
			if f, err := t.GetFormula(name); err == nil {
				return f, nil
			}
		}
	}

	return nil, errors.NewFormulaUnavailableError(name)
}

func (m *Manager) getTapPath(name string) string {
	parts := strings.Split(name, "/")
	if len(parts) != 2 {
		parts = []string{"homebrew", name}
	}
	return filepath.Join(m.cfg.HomebrewRepository, "Library", "Taps", parts[0], "homebrew-"+parts[1])
}

func (m *Manager) validateTapName(name string) error {
	if name == "" {
		return fmt.Errorf("tap name cannot be empty")
	}
	if strings.Contains(name, " ") {
		return fmt.Errorf("tap name cannot contain spaces")
	}
	return nil
}

func (m *Manager) getDefaultRemote(name string) string {
	parts := strings.Split(name, "/")
	if len(parts) == 2 {
		return fmt.Sprintf("https://github.com/%s/homebrew-%s.git", parts[0], parts[1])
	}
	return fmt.Sprintf("https://github.com/homebrew/homebrew-%s.git", name)
}

func (m *Manager) isTapDirectory(path string) bool {
	formulaDir := filepath.Join(path, "Formula")
	_, err := os.Stat(formulaDir)
	return err == nil
}

func (m *Manager) loadTap(path string) (*Tap, error) {
	relPath, err := filepath.Rel(filepath.Join(m.cfg.HomebrewRepository, "Library", "Taps"), path)
	if err != nil {
		return nil, fmt.Errorf("failed to get relative path: %w", err)
	}

	parts := strings.Split(relPath, string(filepath.Separator))
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid tap path structure")
	}

	user := parts[0]
	repo := strings.TrimPrefix(parts[1], "homebrew-")
	name := user + "/" + repo

	t := &Tap{
		Name:       name,
		FullName:   "homebrew/" + repo,
		User:       user,
		Repository: repo,
		Path:       path,
		Installed:  true,
		Official:   user == "homebrew",
		Formulae:   m.countFormulae(path),
	}

	if remote := m.getRemoteURL(path); remote != "" {
		t.Remote = remote
	}

	return t, nil
}

func (m *Manager) countFormulae(tapPath string) int {
	formulaDir := filepath.Join(tapPath, "Formula")
	files, err := os.ReadDir(formulaDir)
	if err != nil {
		return 0
	}
	count := 0
	for _, file := range files {
		if !file.IsDir() && (strings.HasSuffix(file.Name(), ".yaml") || strings.HasSuffix(file.Name(), ".rb")) {
			count++
		}
	}
	return count
}

func (m *Manager) getRemoteURL(tapPath string) string {
	repo, err := git.PlainOpen(tapPath)
	if err != nil {
		return ""
	}
	cfg, err := repo.Config()
	if err != nil {
		return ""
	}
	if remote, ok := cfg.Remotes["origin"]; ok && len(remote.URLs) > 0 {
		return remote.URLs[0]
	}
	return ""
}

func (m *Manager) verifyTap(tapPath string) error {
	formulaDir := filepath.Join(tapPath, "Formula")
	if _, err := os.Stat(formulaDir); err != nil {
		return fmt.Errorf("tap does not contain a Formula directory")
	}
	return nil
}

func (m *Manager) getInstalledFormulaeFromTap(t *Tap) ([]string, error) {
	var installed []string

	tapFormulae, err := t.ListFormulae()
	if err != nil {
		return nil, fmt.Errorf("failed to list formulae from tap: %w", err)
	}

	for _, name := range tapFormulae {
		formulaDir := filepath.Join(m.cfg.HomebrewCellar, name)
		if _, err := os.Stat(formulaDir); err == nil {
			if m.isFormulaFromTap(name, t.Name) {
				installed = append(installed, name)
			}
		}
	}

	return installed, nil
}

func (m *Manager) isFormulaFromTap(formulaName, tapName string) bool {
	tapPath := m.getTapPath(tapName)
	yamlInTap := filepath.Join(tapPath, "Formula", formulaName+".yaml")
	_, err := os.Stat(yamlInTap)
	return err == nil
}

// GetFormula loads and parses a single formula from this tap.
func (t *Tap) GetFormula(name string) (*formula.Formula, error) {
	yamlPath := filepath.Join(t.Path, "Formula", name+".yaml")

	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("formula %s not found in tap %s", name, t.Name)
	}

	f, err := formula.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse formula: %w", err)
	}

	f.Tap = t.Name
	f.Path = yamlPath

	if info, statErr := os.Stat(yamlPath); statErr == nil {
		f.UpdatedAt = info.ModTime()
	}

	return f, nil
}

// ListFormulae lists every formula name declared in this tap.
func (t *Tap) ListFormulae() ([]string, error) {
	formulaDir := filepath.Join(t.Path, "Formula")
	files, err := os.ReadDir(formulaDir)
	if err != nil {
		return nil, err
	}

	var formulae []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".yaml") {
			formulae = append(formulae, strings.TrimSuffix(file.Name(), ".yaml"))
		}
	}

	sort.Strings(formulae)
	return formulae, nil
}
