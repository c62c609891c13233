package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// Claims is what a verified token says about its bearer.
type Claims struct {
	AccountID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Tokens issues and verifies bearer tokens.
type Tokens interface {
	Issue(accountID string, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (Claims, error)
}

// Manager is the PASETO v4.public implementation of Tokens.
type Manager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration
	ephemeral bool

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewManager builds a Manager. With an empty SecretKeyHex a fresh key pair is
// generated, so tokens do not survive a restart; check Ephemeral to warn.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Issuer == "" || cfg.AccessTTL <= 0 {
		return nil, ErrConfig
	}

	var (
		secret    paseto.V4AsymmetricSecretKey
		ephemeral bool
	)
	if cfg.SecretKeyHex == "" {
		secret = paseto.NewV4AsymmetricSecretKey()
		ephemeral = true
	} else {
		k, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.SecretKeyHex)
		if err != nil {
			return nil, ErrConfig
		}
		secret = k
	}

	return &Manager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTTL,
		clockSkew: cfg.ClockSkew,
		ephemeral: ephemeral,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

// Ephemeral reports whether the signing key was generated at startup.
func (m *Manager) Ephemeral() bool { return m.ephemeral }

func (m *Manager) Issue(accountID string, now time.Time) (string, time.Time, error) {
	if accountID == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	if err := tok.Set("uid", accountID); err != nil {
		return "", time.Time{}, err
	}

	return tok.V4Sign(m.secret, nil), exp, nil
}

func (m *Manager) Verify(token string, now time.Time) (Claims, error) {
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(m.issuer))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	// Skew widens the window on both ends.
	nbf, err := parsed.GetNotBefore()
	if err != nil || now.Add(m.clockSkew).Before(nbf) {
		return Claims{}, ErrInvalidToken
	}
	exp, err := parsed.GetExpiration()
	if err != nil || !now.Add(-m.clockSkew).Before(exp) {
		return Claims{}, ErrInvalidToken
	}
	iat, _ := parsed.GetIssuedAt()

	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return Claims{}, ErrInvalidToken
	}

	return Claims{AccountID: uid, IssuedAt: iat, ExpiresAt: exp}, nil
}
