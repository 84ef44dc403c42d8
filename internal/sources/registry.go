package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
)

// configFile represents the structure of the sources configuration file.
type configFile struct {
	Countries []CountryConfig `json:"countries" yaml:"countries"`
}

// CountryConfig declares everything harvested for one country. Keyword entries
// may contain comma-separated groups; they are expanded during sanitization.
type CountryConfig struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	NewsSources []string `json:"news_sources" yaml:"news_sources"`
	Keywords    []string `json:"keywords" yaml:"keywords"`

	USMentions *USMentionConfig `json:"us_mentions" yaml:"us_mentions"`

	GovernmentHandles []string `json:"government_messaging" yaml:"government_messaging"`
	LeadershipHandles []string `json:"leadership_messaging" yaml:"leadership_messaging"`
	EmbassyHandles    []string `json:"embassy_presence" yaml:"embassy_presence"`
	AmbassadorHandles []string `json:"ambassadors" yaml:"ambassadors"`

	BreakingNews *BreakingNewsConfig `json:"breaking_news" yaml:"breaking_news"`
}

// USMentionConfig holds the US-mentions source and keyword lists, kept
// separate from the country's own sources.
type USMentionConfig struct {
	Sources  []string `json:"sources" yaml:"sources"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// BreakingNewsConfig names the breaking-news handle and its filter keyword.
type BreakingNewsConfig struct {
	Handle  string `json:"handle" yaml:"handle"`
	Keyword string `json:"keyword" yaml:"keyword"`
}

// Registry materializes country definitions loaded from config files.
type Registry struct {
	mu        sync.RWMutex
	countries []CountryConfig
	idx       map[string]CountryConfig
}

// LoadRegistry loads the sources registry from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sources file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(raw)))

	fileReg, err := parseRegistry(expanded, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(fileReg.Countries) == 0 {
		return nil, errors.New("sources file contains no countries entries")
	}

	reg := &Registry{
		countries: make([]CountryConfig, len(fileReg.Countries)),
		idx:       make(map[string]CountryConfig, len(fileReg.Countries)),
	}

	for i := range fileReg.Countries {
		cfg := sanitizeCountry(fileReg.Countries[i])
		if err := validateCountry(cfg); err != nil {
			return nil, fmt.Errorf("countries[%d]: %w", i, err)
		}
		if _, exists := reg.idx[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate country id %q", cfg.ID)
		}
		reg.countries[i] = cfg
		reg.idx[cfg.ID] = cfg
	}

	return reg, nil
}

// parseRegistry attempts to decode the sources file content.
func parseRegistry(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yamlUnmarshal},
		{name: "yaml", ext: ".yml", fn: yamlUnmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var reg configFile
		if err := d.fn(data, &reg); err == nil {
			return reg, nil
		}
	}

	return configFile{}, errors.New("sources file format not recognized (expected YAML or JSON)")
}

func yamlUnmarshal(data []byte, out any) error { return yaml.Unmarshal(data, out) }

// sanitizeCountry trims fields, normalizes handles, and expands keyword groups.
func sanitizeCountry(cfg CountryConfig) CountryConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.NewsSources = sanitizeURLs(cfg.NewsSources)
	cfg.Keywords = ExpandKeywords(cfg.Keywords)
	cfg.GovernmentHandles = sanitizeHandles(cfg.GovernmentHandles)
	cfg.LeadershipHandles = sanitizeHandles(cfg.LeadershipHandles)
	cfg.EmbassyHandles = sanitizeHandles(cfg.EmbassyHandles)
	cfg.AmbassadorHandles = sanitizeHandles(cfg.AmbassadorHandles)

	if cfg.USMentions != nil {
		us := *cfg.USMentions
		us.Sources = sanitizeURLs(us.Sources)
		us.Keywords = ExpandKeywords(us.Keywords)
		if len(us.Sources) == 0 && len(us.Keywords) == 0 {
			cfg.USMentions = nil
		} else {
			cfg.USMentions = &us
		}
	}

	if cfg.BreakingNews != nil {
		bn := *cfg.BreakingNews
		bn.Handle = strings.TrimPrefix(strings.TrimSpace(bn.Handle), "@")
		bn.Keyword = strings.TrimSpace(bn.Keyword)
		if bn.Handle == "" {
			cfg.BreakingNews = nil
		} else {
			cfg.BreakingNews = &bn
		}
	}

	return cfg
}

// ExpandKeywords splits comma-separated keyword groups into individual terms.
func ExpandKeywords(raw []string) []string {
	var out []string
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			if kw := strings.TrimSpace(part); kw != "" {
				out = append(out, kw)
			}
		}
	}
	return out
}

func sanitizeHandles(raw []string) []string {
	var out []string
	for _, h := range raw {
		h = strings.TrimPrefix(strings.TrimSpace(h), "@")
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

func sanitizeURLs(raw []string) []string {
	var out []string
	for _, u := range raw {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// validateCountry checks that required fields are present and URLs parse.
func validateCountry(cfg CountryConfig) error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	if cfg.Name == "" {
		return fmt.Errorf("name is required for country %q", cfg.ID)
	}
	for _, raw := range cfg.NewsSources {
		if err := checkURL(raw); err != nil {
			return fmt.Errorf("country %q: %w", cfg.ID, err)
		}
	}
	if cfg.USMentions != nil {
		for _, raw := range cfg.USMentions.Sources {
			if err := checkURL(raw); err != nil {
				return fmt.Errorf("country %q us_mentions: %w", cfg.ID, err)
			}
		}
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid source url %q", raw)
	}
	return nil
}

// ByID returns the country config by id.
func (r *Registry) ByID(id string) (CountryConfig, bool) {
	if r == nil {
		return CountryConfig{}, false
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return CountryConfig{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.idx[id]
	return cfg, ok
}

// All returns all configured countries.
func (r *Registry) All() []CountryConfig {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CountryConfig, len(r.countries))
	copy(out, r.countries)
	return out
}

// Country returns the externally-owned identity record.
func (c CountryConfig) Country() domain.Country {
	return domain.Country{ID: c.ID, Name: c.Name}
}

// PageTargets lists the HTML scrape targets for a page-backed feed family.
func (c CountryConfig) PageTargets(feed domain.FeedType) []domain.PageTarget {
	var urls, keywords []string
	switch feed {
	case domain.FeedMain:
		urls, keywords = c.NewsSources, c.Keywords
	case domain.FeedUSMentions:
		if c.USMentions == nil {
			return nil
		}
		urls, keywords = c.USMentions.Sources, c.USMentions.Keywords
	default:
		return nil
	}
	if len(urls) == 0 || len(keywords) == 0 {
		return nil
	}

	targets := make([]domain.PageTarget, 0, len(urls))
	for _, u := range urls {
		targets = append(targets, domain.PageTarget{
			CountryID: c.ID,
			URL:       u,
			Keywords:  keywords,
			FeedType:  feed,
		})
	}
	return targets
}

// HandleTargets lists the social scrape targets for a handle-backed feed
// family. Messaging feeds search the handle's own posts; mention feeds search
// posts about the handle.
func (c CountryConfig) HandleTargets(feed domain.FeedType) []domain.HandleTarget {
	var handles []string
	mode := domain.ModeSelf
	switch feed {
	case domain.FeedGovernmentMessaging:
		handles = c.GovernmentHandles
	case domain.FeedLeadershipMessaging:
		handles = c.LeadershipHandles
	case domain.FeedEmbassyMention:
		handles, mode = c.EmbassyHandles, domain.ModeAbout
	case domain.FeedAmbassadorMention:
		handles, mode = c.AmbassadorHandles, domain.ModeAbout
	case domain.FeedBreakingNews:
		if c.BreakingNews == nil {
			return nil
		}
		return []domain.HandleTarget{{
			CountryID: c.ID,
			Handle:    c.BreakingNews.Handle,
			Keyword:   c.BreakingNews.Keyword,
			Mode:      domain.ModeSelf,
			FeedType:  feed,
		}}
	default:
		return nil
	}

	targets := make([]domain.HandleTarget, 0, len(handles))
	for _, h := range handles {
		targets = append(targets, domain.HandleTarget{
			CountryID: c.ID,
			Handle:    h,
			Mode:      mode,
			FeedType:  feed,
		})
	}
	return targets
}
