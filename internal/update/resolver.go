package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	apperrors "notepad/internal/errors"
)

// Default configuration values.
const (
	DefaultRepoOwner = "hhyufan"
	DefaultRepoName  = "miaogu-notepad"
	DefaultUserAgent = "miaogu-notepad"
	DefaultTimeout   = 10 * time.Second
)

// Error variables for specific error conditions.
var (
	ErrNetworkFailure = fmt.Errorf("network request failed")
	ErrRateLimited    = fmt.Errorf("rate limited by GitHub API")
)

// ReleaseAsset represents a downloadable file attached to a release.
type ReleaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// ReleaseInfo is the subset of a GitHub release document the resolver reads.
type ReleaseInfo struct {
	TagName     string         `json:"tag_name"`
	Name        string         `json:"name"`
	Body        *string        `json:"body"`
	PublishedAt string         `json:"published_at"`
	Assets      []ReleaseAsset `json:"assets"`
}

// Resolver fetches release metadata and decides whether an update exists.
type Resolver struct {
	current     string
	endpoint    string
	userAgent   string
	assetSuffix string
	httpClient  *http.Client
	log         *log.Entry

	group singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient sets a custom HTTP client for the resolver.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout for the version check.
func WithTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		if timeout > 0 {
			r.httpClient.Timeout = timeout
		}
	}
}

// WithRepository points the resolver at github.com/owner/repo.
func WithRepository(owner, repo string) ResolverOption {
	return func(r *Resolver) {
		r.endpoint = ReleasesEndpoint(owner, repo)
	}
}

// WithEndpoint overrides the full release metadata URL. Empty is ignored.
func WithEndpoint(url string) ResolverOption {
	return func(r *Resolver) {
		if strings.TrimSpace(url) != "" {
			r.endpoint = url
		}
	}
}

// WithUserAgent sets the User-Agent header sent with the check.
func WithUserAgent(ua string) ResolverOption {
	return func(r *Resolver) {
		if ua != "" {
			r.userAgent = ua
		}
	}
}

// WithAssetSuffix overrides the platform asset suffix. Empty is ignored.
func WithAssetSuffix(suffix string) ResolverOption {
	return func(r *Resolver) {
		if suffix != "" {
			r.assetSuffix = suffix
		}
	}
}

// WithResolverLogger sets the logger used for diagnostics.
func WithResolverLogger(entry *log.Entry) ResolverOption {
	return func(r *Resolver) {
		if entry != nil {
			r.log = entry
		}
	}
}

// NewResolver creates a resolver comparing against currentVersion.
func NewResolver(currentVersion string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		current:     NormalizeTag(currentVersion),
		endpoint:    ReleasesEndpoint(DefaultRepoOwner, DefaultRepoName),
		userAgent:   DefaultUserAgent,
		assetSuffix: DefaultAssetSuffix(),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReleasesEndpoint returns the GitHub "latest release" URL for a repository.
func ReleasesEndpoint(owner, repo string) string {
	return fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/latest", owner, repo)
}

// DefaultAssetSuffix returns the asset name suffix for the running platform.
func DefaultAssetSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return "-" + runtime.GOOS + "-" + runtime.GOARCH
}

// CurrentVersion returns the version the resolver compares against.
func (r *Resolver) CurrentVersion() string {
	return r.current
}

// Resolve fetches the latest release and compares it to the current version.
// Concurrent calls share a single request. The shared request is bounded by
// the client timeout only, so cancelling ctx ends this caller's wait without
// failing the other callers.
func (r *Resolver) Resolve(ctx context.Context) (VersionInfo, error) {
	ch := r.group.DoChan("latest", func() (any, error) {
		return r.resolve(context.WithoutCancel(ctx))
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return VersionInfo{}, apperrors.New(apperrors.CodeNetwork, "fetch release info", ctx.Err())
	}
	if res.Err != nil {
		return VersionInfo{}, res.Err
	}
	info := res.Val.(VersionInfo)
	if info.PublishedAt != nil {
		t := *info.PublishedAt
		info.PublishedAt = &t
	}
	return info, nil
}

func (r *Resolver) resolve(ctx context.Context) (VersionInfo, error) {
	release, err := r.fetchLatestRelease(ctx)
	if err != nil {
		return VersionInfo{}, err
	}

	latest := NormalizeTag(release.TagName)
	if _, err := ParseVersion(latest); err != nil {
		return VersionInfo{}, err
	}

	info := VersionInfo{
		CurrentVersion: r.current,
		LatestVersion:  latest,
	}
	if _, err := ParseVersion(r.current); err != nil {
		// Development builds never see an update.
		r.log.WithError(err).Debugf("current version %q is not comparable", r.current)
	} else {
		info.HasUpdate = IsNewer(r.current, latest)
	}
	if asset, ok := SelectAsset(release.Assets, r.assetSuffix); ok {
		info.DownloadURL = asset.BrowserDownloadURL
	}
	if release.Body != nil {
		info.ReleaseNotes = *release.Body
	}
	if ts, err := time.Parse(time.RFC3339, release.PublishedAt); err == nil {
		info.PublishedAt = &ts
	}

	r.log.WithFields(log.Fields{
		"current":    info.CurrentVersion,
		"latest":     info.LatestVersion,
		"has_update": info.HasUpdate,
	}).Debug("resolved latest release")

	return info, nil
}

// fetchLatestRelease fetches the latest release document.
func (r *Resolver) fetchLatestRelease(ctx context.Context) (*ReleaseInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeNetwork, "create request", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeNetwork, "fetch release info", fmt.Errorf("%w: %v", ErrNetworkFailure, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return nil, apperrors.New(apperrors.CodeNetwork, "fetch release info", ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.New(apperrors.CodeNetwork, "fetch release info", fmt.Errorf("%w: status %d", ErrNetworkFailure, resp.StatusCode))
	}

	var release ReleaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, apperrors.New(apperrors.CodeParse, "parse release info", err)
	}
	if release.TagName == "" {
		return nil, apperrors.New(apperrors.CodeParse, "parse release info", fmt.Errorf("missing tag_name"))
	}

	return &release, nil
}

// SelectAsset returns the first asset whose name ends with suffix and is not
// an installer ("setup" anywhere in the name).
func SelectAsset(assets []ReleaseAsset, suffix string) (ReleaseAsset, bool) {
	suffix = strings.ToLower(suffix)
	for _, asset := range assets {
		name := strings.ToLower(asset.Name)
		if strings.Contains(name, "setup") {
			continue
		}
		if strings.HasSuffix(name, suffix) {
			return asset, true
		}
	}
	return ReleaseAsset{}, false
}
