package git

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Credentials holds per-host access tokens.
type Credentials struct {
	GitHub    string            `mapstructure:"github"`
	GitLab    string            `mapstructure:"gitlab"`
	Bitbucket string            `mapstructure:"bitbucket"`
	Hosts     map[string]string `mapstructure:"hosts"`
}

// Usernames each host expects alongside a token.
const (
	githubUser    = "x-access-token"
	gitlabUser    = "oauth2"
	bitbucketUser = "x-token-auth"
)

// TokenFor selects the credential for a repository URL. ok is false when no
// token is configured for the URL's host.
func (c Credentials) TokenFor(rawURL string) (username, token string, ok bool) {
	host := hostOf(rawURL)
	if host == "" {
		return "", "", false
	}

	switch {
	case host == "github.com" || strings.HasSuffix(host, ".github.com"):
		username, token = githubUser, c.GitHub
	case host == "gitlab.com" || strings.HasSuffix(host, ".gitlab.com"):
		username, token = gitlabUser, c.GitLab
	case host == "bitbucket.org":
		username, token = bitbucketUser, c.Bitbucket
	}
	if t, found := c.Hosts[host]; found && t != "" {
		token = t
		if username == "" {
			username = usernameFor(host)
		}
	}
	if token == "" {
		return "", "", false
	}
	return username, token, true
}

// usernameFor guesses the username convention of a self-hosted instance.
func usernameFor(host string) string {
	switch {
	case strings.Contains(host, "gitlab"):
		return gitlabUser
	case strings.Contains(host, "bitbucket"):
		return bitbucketUser
	default:
		return githubUser
	}
}

// AuthenticatedURL injects the matching credential into an https URL. Other
// URLs, and URLs with no configured token, are returned unchanged.
func AuthenticatedURL(rawURL string, creds Credentials) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		if err != nil && strings.Contains(rawURL, "://") {
			return "", fmt.Errorf("parsing repository url: %w", err)
		}
		return rawURL, nil
	}
	username, token, ok := creds.TokenFor(rawURL)
	if !ok {
		return rawURL, nil
	}
	u.User = url.UserPassword(username, token)
	return u.String(), nil
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname())
	}
	// scp-like: git@github.com:org/repo.git
	if at := strings.Index(rawURL, "@"); at >= 0 {
		rest := rawURL[at+1:]
		if colon := strings.Index(rest, ":"); colon > 0 {
			return strings.ToLower(rest[:colon])
		}
	}
	return ""
}

var userinfoRe = regexp.MustCompile(`(https?://)[^/@\s]+@`)

// RedactURL removes userinfo from every http(s) URL in s.
func RedactURL(s string) string {
	return userinfoRe.ReplaceAllString(s, "${1}***@")
}
