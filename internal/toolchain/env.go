package toolchain

import "fmt"

// BaseEnv builds the minimal, explicit environment every external command
// receives: PATH plus the Debian packaging identity (DEBFULLNAME/DEBEMAIL).
// Nothing from the daemon's own process environment leaks through.
func BaseEnv(path, debEmailName, debEmailAddress string) []string {
	env := []string{
		"PATH=" + path,
		"DEBFULLNAME=" + debEmailName,
		fmt.Sprintf("DEBEMAIL=%s <%s>", debEmailName, debEmailAddress),
	}
	return env
}

// WithProxy appends http_proxy/https_proxy to env; used only for commands
// that talk to the review forge over the network, unlike
// internal/git.RepositoryService which must still toggle the process-wide
// proxy env vars for go-git's sake.
func WithProxy(env []string, proxyURL string) []string {
	if proxyURL == "" {
		return env
	}
	return append(env, "http_proxy="+proxyURL, "https_proxy="+proxyURL)
}
