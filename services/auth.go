package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/smtp"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const magicLinkTTL = 15 * time.Minute

// Claims is the session token payload. The subject is the owner id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type magicLink struct {
	email   string
	expires time.Time
}

type AuthService struct {
	mu         sync.Mutex
	links      map[string]magicLink // token -> pending sign-in
	jwtSecret  []byte
	tokenTTL   time.Duration
	smtpConfig SMTPConfig
	now        func() time.Time
}

func NewAuthService(cfg AuthConfig) (*AuthService, error) {
	ttl, err := cfg.TTL()
	if err != nil {
		return nil, err
	}
	secret := cfg.JWTSecret
	if secret == "" {
		secret = defaultJWTSecret
	}
	if secret == defaultJWTSecret {
		log.Printf("Warning: using the default JWT secret, set JWT_SECRET in production")
	}
	return &AuthService{
		links:      make(map[string]magicLink),
		jwtSecret:  []byte(secret),
		tokenTTL:   ttl,
		smtpConfig: cfg.SMTP,
		now:        time.Now,
	}, nil
}

// GenerateMagicLink creates a one-time sign-in link for email and mails it
// when SMTP is configured. The link is returned for development use.
func (s *AuthService) GenerateMagicLink(email string, baseURL string) (string, error) {
	token, err := generateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.mu.Lock()
	s.links[token] = magicLink{email: email, expires: s.now().Add(magicLinkTTL)}
	s.mu.Unlock()

	link := fmt.Sprintf("%s/api/auth/magic-link?token=%s", baseURL, token)

	if s.smtpConfig.Host != "" {
		if err := s.sendMagicLinkEmail(email, link); err != nil {
			log.Printf("Warning: Failed to send email: %v", err)
		}
	}

	return link, nil
}

// VerifyMagicLinkToken consumes a one-time token and returns its email.
func (s *AuthService) VerifyMagicLinkToken(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, exists := s.links[token]
	if !exists {
		return "", errors.New("invalid or expired token")
	}
	delete(s.links, token)
	if s.now().After(link.expires) {
		return "", errors.New("invalid or expired token")
	}
	return link.email, nil
}

// PurgeExpired drops magic links that were never used.
func (s *AuthService) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for token, link := range s.links {
		if now.After(link.expires) {
			delete(s.links, token)
			n++
		}
	}
	return n
}

// CreateJWT issues a session token for ownerID.
func (s *AuthService) CreateJWT(ownerID, email string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// VerifyJWT checks a session token and returns its claims.
func (s *AuthService) VerifyJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("subject claim missing")
	}
	return claims, nil
}

func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (s *AuthService) sendMagicLinkEmail(to, link string) error {
	if s.smtpConfig.Host == "" || s.smtpConfig.Port == "" ||
		s.smtpConfig.Username == "" || s.smtpConfig.Password == "" {
		return errors.New("SMTP not fully configured")
	}

	auth := smtp.PlainAuth("", s.smtpConfig.Username, s.smtpConfig.Password, s.smtpConfig.Host)

	from := s.smtpConfig.From
	if from == "" {
		from = s.smtpConfig.Username
	}

	subject := "Your Planner sign-in link"
	body := fmt.Sprintf("Click the link below to sign in to Planner:\n\n%s\n\nThe link expires in %s. If you didn't request it, you can safely ignore this email.",
		link, magicLinkTTL)
	message := fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\n\n%s", from, to, subject, body)

	addr := fmt.Sprintf("%s:%s", s.smtpConfig.Host, s.smtpConfig.Port)
	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
