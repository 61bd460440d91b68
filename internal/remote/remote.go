// Package remote implements C7: the polymorphic Remote Engine
// Interface (spec §4.7, design note "Polymorphic Remote Engine") --
// clone/fetch/push/checkFetch as a capability record backed by
// go-git's transport, with the spec's normalized error taxonomy and a
// cenkalti/backoff/v4 retry policy for transient network errors,
// grounded on the teacher's internal/storage/dolt/store.go retry-with-
// backoff.Retry idiom and rgehrsitz-archon's Repository capability-
// record interface shape.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/gitddb/gitddb/internal/dberr"
	gitcfg "github.com/gitddb/gitddb/internal/config"
	"github.com/gitddb/gitddb/internal/gitgw"
)

// Engine is the capability record every Remote Engine implementation
// satisfies (spec §4.7, design note "Polymorphic Remote Engine" --
// engines are injected at construction rather than looked up by name).
type Engine interface {
	Clone(ctx context.Context, dir string, opts gitcfg.RemoteOptions, remoteName string) error
	Fetch(ctx context.Context, gw *gitgw.Gateway, opts gitcfg.RemoteOptions, remoteName string) error
	CheckFetch(ctx context.Context, gw *gitgw.Gateway, opts gitcfg.RemoteOptions, remoteName string) (bool, error)
	Push(ctx context.Context, gw *gitgw.Gateway, opts gitcfg.RemoteOptions, remoteName, localBranch, remoteBranch string) error
}

// GoGitEngine is the default Engine, implemented entirely on
// go-git/v5's transport -- no shelling out to the git binary.
type GoGitEngine struct{}

// New returns the default, pure-go-git Remote Engine.
func New() *GoGitEngine { return &GoGitEngine{} }

var githubURLPattern = regexp.MustCompile(`^https?://[^/]+/[^/]+/[^/]+?(\.git)?/?$`)

func validateURL(opts gitcfg.RemoteOptions) error {
	if opts.RemoteURL == "" {
		return dberr.New(dberr.UndefinedRemoteURL)
	}
	if opts.Connection.Type == "github" {
		if !strings.HasPrefix(opts.RemoteURL, "http://") && !strings.HasPrefix(opts.RemoteURL, "https://") {
			return dberr.Wrap(dberr.InvalidURLFormat, "validateURL", opts.RemoteURL, nil)
		}
		if !githubURLPattern.MatchString(opts.RemoteURL) {
			return dberr.Wrap(dberr.InvalidRepositoryURL, "validateURL", opts.RemoteURL, nil)
		}
	}
	return nil
}

// ValidateOptions runs the same URL-format and authentication checks
// Clone/Fetch/Push apply internally, so the Sync Engine's setup (spec
// §4.9 sync()) can fail synchronously -- before any task is scheduled
// -- on UndefinedRemoteURL/InvalidURLFormat/InvalidRepositoryURL/
// InvalidAuthenticationType (spec §7 "Sync setup" errors).
func ValidateOptions(opts gitcfg.RemoteOptions) error {
	if err := validateURL(opts); err != nil {
		return err
	}
	_, err := authMethod(opts)
	return err
}

func authMethod(opts gitcfg.RemoteOptions) (transport.AuthMethod, error) {
	switch opts.Connection.Type {
	case "", "none":
		return nil, nil
	case "github":
		if opts.Connection.PersonalAccessToken == "" {
			return nil, dberr.Wrap(dberr.InvalidAuthenticationType, "authMethod", opts.RemoteURL, nil)
		}
		return &http.BasicAuth{Username: "x-access-token", Password: opts.Connection.PersonalAccessToken}, nil
	case "ssh":
		if opts.Connection.PrivateKeyPath == "" {
			return nil, dberr.Wrap(dberr.InvalidAuthenticationType, "authMethod", opts.RemoteURL, nil)
		}
		auth, err := ssh.NewPublicKeysFromFile("git", opts.Connection.PrivateKeyPath, opts.Connection.PassPhrase)
		if err != nil {
			return nil, dberr.Wrap(dberr.InvalidAuthenticationType, "authMethod", opts.RemoteURL, err)
		}
		return auth, nil
	default:
		return nil, dberr.Wrap(dberr.InvalidAuthenticationType, "authMethod", opts.RemoteURL, nil)
	}
}

// classify maps a go-git/transport/network error into the spec's
// closed taxonomy. It never lets a library error message leak past
// the engine boundary except as Detail (design note "Error taxonomy as
// sum type").
func classify(op, target string, err error) error {
	if err == nil {
		return nil
	}
	var derr *dberr.Error
	if errors.As(err, &derr) {
		return err
	}

	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired):
		return dberr.Wrap(dberr.HTTPError401AuthorizationRequired, op, target, err)
	case errors.Is(err, transport.ErrAuthorizationFailed):
		return dberr.Wrap(dberr.HTTPError403Forbidden, op, target, err)
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return dberr.Wrap(dberr.HTTPError404NotFound, op, target, err)
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return dberr.Wrap(dberr.UnfetchedCommitExists, op, target, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return dberr.Wrap(dberr.HTTPError401AuthorizationRequired, op, target, err)
	case strings.Contains(msg, "403") || strings.Contains(msg, "forbidden"):
		return dberr.Wrap(dberr.HTTPError403Forbidden, op, target, err)
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return dberr.Wrap(dberr.HTTPError404NotFound, op, target, err)
	case strings.Contains(msg, "non-fast-forward") || strings.Contains(msg, "fetch first"):
		return dberr.Wrap(dberr.UnfetchedCommitExists, op, target, err)
	}

	if isTransientNetworkError(err) {
		return dberr.Wrap(dberr.NetworkError, op, target, err)
	}
	return dberr.Wrap(dberr.CannotConnect, op, target, err)
}

// isTransientNetworkError reports whether err looks like one of the
// spec's named transient conditions (ENOTFOUND/ECONNREFUSED/EACCES),
// the class the retry policy is allowed to retry (spec §4.7).
func isTransientNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"enotfound", "econnrefused", "eacces", "connection refused", "no such host", "i/o timeout", "timeout", "temporary failure", "eof"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// retry runs fn up to opts.Retry additional times, separated by
// opts.RetryInterval, retrying only when classify(err) is transient
// (spec §4.7's NetworkError class). Non-retryable errors surface on
// the first attempt, grounded on the teacher's
// internal/storage/dolt/store.go newServerRetryBackoff/backoff.Retry
// idiom.
func retry(ctx context.Context, opts gitcfg.RemoteOptions, op, target string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(opts.RetryInterval) * time.Millisecond
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = time.Second
	}
	bo.MaxElapsedTime = 0
	attempts := 0
	maxAttempts := opts.Retry + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	wrapped := func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		classified := classify(op, target, err)
		var derr *dberr.Error
		if errors.As(classified, &derr) && derr.Kind == dberr.NetworkError {
			if attempts >= maxAttempts {
				return backoff.Permanent(classified)
			}
			return classified
		}
		return backoff.Permanent(classified)
	}

	err := backoff.Retry(wrapped, backoff.WithContext(bo, ctx))
	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func remoteRefSpec(remoteName, localBranch, remoteBranch string) config.RefSpec {
	return config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", localBranch, remoteBranch))
}

// Clone performs the initial clone of a remote history into dir (spec
// §4.9 init()'s "combine database" path when no local history exists).
func (e *GoGitEngine) Clone(ctx context.Context, dir string, opts gitcfg.RemoteOptions, remoteName string) error {
	if err := validateURL(opts); err != nil {
		return err
	}
	auth, err := authMethod(opts)
	if err != nil {
		return err
	}
	return retry(ctx, opts, "clone", opts.RemoteURL, func() error {
		_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:        opts.RemoteURL,
			Auth:       auth,
			RemoteName: remoteName,
		})
		if errors.Is(err, git.ErrRepositoryAlreadyExists) {
			return nil
		}
		return err
	})
}

// Fetch updates remoteName's tracking refs without touching the
// working tree (spec §4.7).
func (e *GoGitEngine) Fetch(ctx context.Context, gw *gitgw.Gateway, opts gitcfg.RemoteOptions, remoteName string) error {
	if err := ensureRemote(gw, opts, remoteName); err != nil {
		return err
	}
	auth, err := authMethod(opts)
	if err != nil {
		return err
	}
	return retry(ctx, opts, "fetch", opts.RemoteURL, func() error {
		err := gw.Repository().FetchContext(ctx, &git.FetchOptions{
			RemoteName: remoteName,
			Auth:       auth,
		})
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return err
	})
}

// CheckFetch reports whether remoteName has any commits the local
// repository lacks, without mutating anything (spec §4.9 init()'s
// "otherwise checkFetch" path).
func (e *GoGitEngine) CheckFetch(ctx context.Context, gw *gitgw.Gateway, opts gitcfg.RemoteOptions, remoteName string) (bool, error) {
	auth, err := authMethod(opts)
	if err != nil {
		return false, err
	}
	rem, err := gw.Repository().Remote(remoteName)
	if err != nil {
		return false, dberr.Wrap(dberr.InvalidGitRemote, "checkFetch", remoteName, err)
	}
	var hasNew bool
	retryErr := retry(ctx, opts, "checkFetch", opts.RemoteURL, func() error {
		refs, err := rem.List(&git.ListOptions{Auth: auth})
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if ref.Name() == plumbing.HEAD {
				continue
			}
			if _, err := gw.Repository().ResolveRevision(plumbing.Revision(ref.Hash().String())); err != nil {
				hasNew = true
			}
		}
		return nil
	})
	if retryErr != nil {
		return false, retryErr
	}
	return hasNew, nil
}

// Push pushes localBranch to remoteName's remoteBranch, translating a
// non-fast-forward rejection into UnfetchedCommitExists for the Sync
// Engine's retry loop (spec §4.9 step 4).
func (e *GoGitEngine) Push(ctx context.Context, gw *gitgw.Gateway, opts gitcfg.RemoteOptions, remoteName, localBranch, remoteBranch string) error {
	if err := ensureRemote(gw, opts, remoteName); err != nil {
		return err
	}
	auth, err := authMethod(opts)
	if err != nil {
		return err
	}
	return retry(ctx, opts, "push", opts.RemoteURL, func() error {
		err := gw.Repository().PushContext(ctx, &git.PushOptions{
			RemoteName: remoteName,
			RefSpecs:   []config.RefSpec{remoteRefSpec(remoteName, localBranch, remoteBranch)},
			Auth:       auth,
		})
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return err
	})
}

// ensureRemote registers remoteName -> opts.RemoteURL if it is not
// already configured, mirroring spec §6's branch & remote conventions
// (remote.<name>.url / remote.<name>.fetch).
func ensureRemote(gw *gitgw.Gateway, opts gitcfg.RemoteOptions, remoteName string) error {
	if err := validateURL(opts); err != nil {
		return err
	}
	if _, err := gw.Repository().Remote(remoteName); err == nil {
		return nil
	}
	_, err := gw.Repository().CreateRemote(&config.RemoteConfig{
		Name: remoteName,
		URLs: []string{opts.RemoteURL},
		Fetch: []config.RefSpec{
			config.RefSpec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", remoteName)),
		},
	})
	if err != nil && !errors.Is(err, git.ErrRemoteExists) {
		return dberr.Wrap(dberr.InvalidGitRemote, "ensureRemote", remoteName, err)
	}
	return nil
}
