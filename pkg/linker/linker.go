package linker

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"golang.org/x/sys/unix"

	"github.com/hardup/hardup/pkg/logger"
)

// Ops are the two syscalls the replacement protocol is built from.
type Ops interface {
	Link(oldname, newname string) error
	Unlink(name string) error
}

type unixOps struct{}

func (unixOps) Link(oldname, newname string) error { return unix.Link(oldname, newname) }
func (unixOps) Unlink(name string) error           { return unix.Unlink(name) }

type Linker struct {
	ops     Ops
	limiter ratelimit.Limiter
	log     *logrus.Entry
}

type Option func(*Linker)

// WithOps replaces the link and unlink syscalls.
func WithOps(ops Ops) Option {
	return func(l *Linker) {
		l.ops = ops
	}
}

// WithRateLimit caps replacements per second, perSecond <= 0 means unlimited.
func WithRateLimit(perSecond int) Option {
	return func(l *Linker) {
		if perSecond > 0 {
			l.limiter = ratelimit.New(perSecond)
		}
	}
}

func New(opts ...Option) *Linker {
	l := &Linker{
		ops:     unixOps{},
		limiter: ratelimit.NewUnlimited(),
		log:     logger.GetLogger("linker"),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// ReplaceWithLink makes duplicate another name of canonical's inode.
//
// The new link is attempted first and must fail with EEXIST, proving the
// duplicate is still in place; only then is the duplicate unlinked and the
// link retried. Any other outcome aborts with an *Error whose Class says
// whether the duplicate's name survived.
func (l *Linker) ReplaceWithLink(canonical, duplicate string) error {
	l.limiter.Take()

	err := l.ops.Link(canonical, duplicate)
	if err == nil {
		return &Error{Kind: ErrRace, Class: DataLoss, Canonical: canonical, Duplicate: duplicate}
	}
	if !errors.Is(err, unix.EEXIST) {
		return &Error{Kind: ErrLink, Class: Safe, Canonical: canonical, Duplicate: duplicate, Err: err}
	}

	if err := l.ops.Unlink(duplicate); err != nil {
		return &Error{Kind: ErrUnlink, Class: Safe, Canonical: canonical, Duplicate: duplicate, Err: err}
	}

	if err := l.ops.Link(canonical, duplicate); err != nil {
		return &Error{Kind: ErrRelink, Class: DataLoss, Canonical: canonical, Duplicate: duplicate, Err: err}
	}

	l.log.Tracef("Replaced %q with a link to %q", duplicate, canonical)
	return nil
}
