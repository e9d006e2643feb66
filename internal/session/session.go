// Package session ties semantic queries to the lifetime of the analysis that produced their
// state. Every query runs under Run, which fails with ErrInvalidated once the session's token
// has been invalidated.
package session

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"semq/internal/semantic"
	"semq/internal/syntax"
	"semq/internal/types"
)

// ErrInvalidated is returned by queries against a session whose token was invalidated.
var ErrInvalidated = errors.New("analysis session invalidated")

// Token is the validity handle of one session. Invalidate may be called from any goroutine.
type Token struct {
	id      uuid.UUID
	invalid atomic.Bool
}

// NewToken returns a valid token with a fresh identity.
func NewToken() *Token {
	return &Token{id: uuid.New()}
}

// ID identifies the session in logs.
func (t *Token) ID() uuid.UUID { return t.id }

// Valid reports whether the token has not been invalidated.
func (t *Token) Valid() bool { return !t.invalid.Load() }

// Invalidate marks the token dead. It is idempotent.
func (t *Token) Invalidate() {
	t.invalid.Store(true)
}

// Resolver maps a syntax node to its semantic counterpart, or nil when it has none.
type Resolver interface {
	Resolve(n *syntax.Node) semantic.Expression
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(n *syntax.Node) semantic.Expression

func (f ResolverFunc) Resolve(n *syntax.Node) semantic.Expression { return f(n) }

// MapResolver resolves from a prebuilt table.
type MapResolver map[*syntax.Node]semantic.Expression

func (m MapResolver) Resolve(n *syntax.Node) semantic.Expression { return m[n] }

type Option func(*Session)

func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithToken makes the session share an existing token.
func WithToken(t *Token) Option {
	return func(s *Session) {
		if t != nil {
			s.token = t
		}
	}
}

// WithStability replaces the default stability predicate, which reads the flag carried by the
// smart-cast wrapper.
func WithStability(stable func(*semantic.ExpressionWithSmartcast) bool) Option {
	return func(s *Session) {
		if stable != nil {
			s.stable = stable
		}
	}
}

// Session owns the resolution cache of one analysis. It is not safe for concurrent use apart
// from invalidating its token.
type Session struct {
	token    *Token
	resolver Resolver
	cache    map[*syntax.Node]semantic.Expression
	stable   func(*semantic.ExpressionWithSmartcast) bool
	log      *zap.Logger
}

// New opens a session over resolver with a fresh token unless WithToken is given.
func New(resolver Resolver, opts ...Option) *Session {
	s := &Session{
		token:    NewToken(),
		resolver: resolver,
		cache:    make(map[*syntax.Node]semantic.Expression),
		stable:   func(e *semantic.ExpressionWithSmartcast) bool { return e.Stable },
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns the validity token guarding the session.
func (s *Session) Token() *Token { return s.token }

// Close invalidates the session. Cached state is dropped.
func (s *Session) Close() {
	if !s.token.Valid() {
		return
	}
	s.token.Invalidate()
	s.log.Debug("session closed", zap.Stringer("session", s.token.ID()), zap.Int("cached", len(s.cache)))
	clear(s.cache)
}

// Check returns an error wrapping ErrInvalidated when the session is no longer valid.
func (s *Session) Check() error {
	if s.token.Valid() {
		return nil
	}
	return errors.Wrapf(ErrInvalidated, "session %s", s.token.ID())
}

// invalidation carries a lazily detected invalidation up to Run.
type invalidation struct {
	err error
}

// AssertValid aborts the running query when the session is no longer valid. It must only be
// called under Run.
func (s *Session) AssertValid() {
	if err := s.Check(); err != nil {
		panic(invalidation{err: err})
	}
}

// Run executes body as one guarded query. The session is checked before and after body, and an
// invalidation detected inside body by AssertValid aborts it. Any other panic propagates.
func Run[T any](s *Session, body func() T) (result T, err error) {
	if err := s.Check(); err != nil {
		return result, err
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		inv, ok := r.(invalidation)
		if !ok {
			panic(r)
		}
		var zero T
		result, err = zero, inv.err
	}()
	result = body()
	if err := s.Check(); err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Resolve returns the semantic form of n, memoizing the result including absence.
func (s *Session) Resolve(n *syntax.Node) semantic.Expression {
	s.AssertValid()
	if n == nil {
		return nil
	}
	if e, ok := s.cache[n]; ok {
		return e
	}
	var e semantic.Expression
	if s.resolver != nil {
		e = s.resolver.Resolve(n)
	}
	s.AssertValid()
	s.cache[n] = e
	return e
}

// IsStableSmartcast reports whether e is a smart cast the analysis may rely on.
func (s *Session) IsStableSmartcast(e semantic.Expression) bool {
	s.AssertValid()
	w, ok := e.(*semantic.ExpressionWithSmartcast)
	return ok && s.stable(w)
}

// PublicType coerces ref to a queryable type. Unresolved references report false.
func (s *Session) PublicType(ref semantic.TypeRef) (types.Type, bool) {
	s.AssertValid()
	r, ok := ref.(semantic.ResolvedTypeRef)
	if !ok || r.Type == nil {
		return nil, false
	}
	return r.Type, true
}
