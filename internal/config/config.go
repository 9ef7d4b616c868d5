package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Listing modes. ListingAPI posts {sectionId, limit} to the site's news list
// endpoint; ListingHTML scrapes paginated listing pages with LinkSelector.
const (
	ListingAPI  = "api"
	ListingHTML = "html"
)

type HTTPConfig struct {
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
	UserAgent      string  `yaml:"user_agent"`
	Proxy          string  `yaml:"proxy"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// ArticleSelectors locate the fields of a single article page.
type ArticleSelectors struct {
	Title               string `yaml:"title"`
	Description         string `yaml:"description"`
	DescriptionAttr     string `yaml:"description_attr"`
	Date                string `yaml:"date"`
	DateAttr            string `yaml:"date_attr"`
	Lead                string `yaml:"lead"`
	Paragraphs          string `yaml:"paragraphs"`
	ReadabilityFallback bool   `yaml:"readability_fallback"`
}

// SiteConfig is the site specific glue: where listings live and how pages
// are marked up.
type SiteConfig struct {
	BaseURL      string           `yaml:"base_url"`
	ListingMode  string           `yaml:"listing_mode"`
	ListingAPI   string           `yaml:"listing_api"`
	ListingPath  string           `yaml:"listing_path"`
	MaxPages     int              `yaml:"max_pages"`
	LinkSelector string           `yaml:"link_selector"`
	NextSelector string           `yaml:"next_selector"`
	Timezone     string           `yaml:"timezone"`
	Article      ArticleSelectors `yaml:"article"`
}

type DBConfig struct {
	URL string `yaml:"url"`
}

type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

type Config struct {
	Headlines   int             `yaml:"headlines"`
	Categories  []string        `yaml:"categories"`
	Format      string          `yaml:"format"`
	Workers     int             `yaml:"workers"`
	OutputDir   string          `yaml:"output_dir"`
	TopWords    bool            `yaml:"top_words"`
	MinDelaySec float64         `yaml:"min_delay"`
	MaxDelaySec float64         `yaml:"max_delay"`
	MaxRetries  int             `yaml:"max_retries"`
	RetryFailed bool            `yaml:"retry_failed"`
	HTTP        HTTPConfig      `yaml:"http"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Site        SiteConfig      `yaml:"site"`
	Database    DBConfig        `yaml:"database"`
	Server      ServerConfig    `yaml:"server"`
}

// Default returns the configuration used when neither a file nor flags
// override a value.
func Default() *Config {
	return &Config{
		Headlines:   20,
		Categories:  CategoryNames(),
		Format:      FormatJSON,
		Workers:     2,
		OutputDir:   "news_data",
		MinDelaySec: 0.2,
		MaxDelaySec: 1.0,
		MaxRetries:  3,
		HTTP: HTTPConfig{
			TimeoutSeconds: 15,
		},
		RateLimit: RateLimitConfig{
			RPS:   2,
			Burst: 5,
		},
		Site: SiteConfig{
			BaseURL:      "https://tass.com",
			ListingMode:  ListingAPI,
			ListingAPI:   "/userApi/categoryNewsList",
			ListingPath:  "/{category}?page={page}",
			MaxPages:     5,
			LinkSelector: `a[href^="/{category}/"]`,
			Timezone:     "Europe/Moscow",
			Article: ArticleSelectors{
				Title:           "h1.news-header__title, h1",
				Description:     `meta[name="description"]`,
				DescriptionAttr: "content",
				Date:            `meta[property="article:published_time"], dateformat[time]`,
				DateAttr:        "content,time",
				Lead:            "div.news-header__lead",
				Paragraphs:      "div.text-block p",
			},
		},
	}
}

// Load reads a yaml file on top of the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("parse config %s: %w", path, err)}
	}
	return cfg, nil
}

func (c *Config) MinDelay() time.Duration {
	return time.Duration(c.MinDelaySec * float64(time.Second))
}

func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySec * float64(time.Second))
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds * float64(time.Second))
}

func (c *Config) Extension() string {
	return ExtensionFor(c.Format)
}

// ExtensionFor maps an output format to its file extension.
func ExtensionFor(format string) string {
	if format == FormatCSV {
		return "csv"
	}
	return "json"
}

// Location resolves the site timezone. Validate rejects unknown zones, so
// the UTC fallback only covers an empty setting or an unvalidated config.
func (c *Config) Location() *time.Location {
	if c.Site.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConfigError is returned for invalid settings. It is always reported before
// any network activity.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Headlines <= 0 {
		result = multierror.Append(result, errors.New("headlines must be positive"))
	}
	if c.Workers <= 0 {
		result = multierror.Append(result, errors.New("workers must be positive"))
	}
	if c.MinDelaySec < 0 {
		result = multierror.Append(result, errors.New("min_delay must not be negative"))
	}
	if c.MinDelaySec >= c.MaxDelaySec {
		result = multierror.Append(result, errors.New("min_delay must be less than max_delay"))
	}
	if c.MaxRetries < 0 {
		result = multierror.Append(result, errors.New("max_retries must not be negative"))
	}
	if len(c.Categories) == 0 {
		result = multierror.Append(result, errors.New("at least one category must be specified"))
	}
	for _, name := range c.Categories {
		if _, ok := LookupCategory(name); !ok {
			result = multierror.Append(result, fmt.Errorf("invalid category: %q", name))
		}
	}
	if c.Format != FormatJSON && c.Format != FormatCSV {
		result = multierror.Append(result, fmt.Errorf("unknown output format %q", c.Format))
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		result = multierror.Append(result, errors.New("http timeout must be positive"))
	}
	if u, err := url.Parse(c.Site.BaseURL); err != nil || u.Host == "" ||
		(u.Scheme != "http" && u.Scheme != "https") {
		result = multierror.Append(result, fmt.Errorf("site base_url %q must be an absolute http(s) URL", c.Site.BaseURL))
	}
	switch c.Site.ListingMode {
	case ListingAPI:
		if strings.TrimSpace(c.Site.ListingAPI) == "" {
			result = multierror.Append(result, errors.New("site listing_api is required in api mode"))
		}
	case ListingHTML:
		if strings.TrimSpace(c.Site.LinkSelector) == "" {
			result = multierror.Append(result, errors.New("site link_selector is required in html mode"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown site listing_mode %q", c.Site.ListingMode))
	}
	if c.Site.Timezone != "" {
		if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
			result = multierror.Append(result, fmt.Errorf("site timezone %q: %w", c.Site.Timezone, err))
		}
	}
	if c.HTTP.Proxy != "" {
		if u, err := url.Parse(c.HTTP.Proxy); err != nil || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("http proxy %q must be a URL with a host", c.HTTP.Proxy))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}
