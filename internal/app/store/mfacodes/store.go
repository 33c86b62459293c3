// internal/app/store/mfacodes/store.go
package mfacodes

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
)

const (
	// CodeLength is the length of the MFA code (6 digits).
	CodeLength = 6
	// DefaultExpiry is how long an MFA code is valid.
	DefaultExpiry = 10 * time.Minute
	// BcryptCost for hashing codes.
	BcryptCost = 10
	// MaxVerifyAttempts is the maximum number of code verification attempts per challenge.
	MaxVerifyAttempts = 5
	// MaxResends is the maximum number of code resends within the rate limit window.
	MaxResends = 3
	// ResendWindow is the time window for tracking resend rate limiting.
	ResendWindow = 10 * time.Minute
)

// Delivery channels for the code.
const (
	ChannelIVRCall = "ivr_call" // outbound call reads the code to the user
	ChannelSMS     = "sms"
)

var (
	// ErrNotFound is returned when a challenge is not found or expired.
	ErrNotFound = errors.New("mfa challenge not found or expired")
	// ErrInvalidCode is returned when the code doesn't match.
	ErrInvalidCode = errors.New("invalid mfa code")
	// ErrTooManyAttempts is returned when too many verification attempts have been made.
	ErrTooManyAttempts = errors.New("too many verification attempts")
	// ErrTooManyResends is returned when too many resend requests have been made.
	ErrTooManyResends = errors.New("too many resend requests")
)

// Challenge represents a pending MFA code check.
type Challenge struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UserID      primitive.ObjectID `bson:"user_id"`
	Phone       string             `bson:"phone"`      // where the code was delivered
	Channel     string             `bson:"channel"`    // "ivr_call" | "sms"
	CodeHash    string             `bson:"code_hash"`  // bcrypt hash of the 6-digit code
	ExpiresAt   time.Time          `bson:"expires_at"` // TTL index field
	CreatedAt   time.Time          `bson:"created_at"`
	Attempts    int                `bson:"attempts"`     // Number of failed verification attempts
	ResendCount int                `bson:"resend_count"` // Number of times code was resent
	WindowStart time.Time          `bson:"window_start"` // Start of rate limit window for resends
}

// Store manages MFA code challenges.
type Store struct {
	c      *mongo.Collection
	expiry time.Duration
}

// New creates a new Store with the specified expiry duration.
// If expiry is 0 or negative, DefaultExpiry (10 minutes) is used.
func New(db *mongo.Database, expiry time.Duration) *Store {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Store{
		c:      db.Collection("mfa_codes"),
		expiry: expiry,
	}
}

// Expiry returns the expiry duration for MFA codes.
func (s *Store) Expiry() time.Duration {
	return s.expiry
}

// EnsureIndexes creates necessary indexes including TTL index for auto-cleanup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("idx_mfacodes_expires_ttl").SetExpireAfterSeconds(0), // TTL index
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("idx_mfacodes_user"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// CreateResult contains the generated code for a challenge.
type CreateResult struct {
	Code        string // Plain text code to deliver over the chosen channel
	ResendCount int    // Number of resends for this challenge (for audit logging)
}

// Create creates a new MFA challenge for a user.
// Returns the plain text code, which the caller hands to the delivery
// provider. If isResend is true, this counts against the resend rate limit.
func (s *Store) Create(ctx context.Context, userID primitive.ObjectID, phone, channel string, isResend bool) (*CreateResult, error) {
	now := time.Now()

	// Check for existing challenge
	var existing Challenge
	err := s.c.FindOne(ctx, bson.M{"user_id": userID}).Decode(&existing)
	existingFound := err == nil

	// Rate limit resends
	if isResend && existingFound {
		if now.Before(existing.WindowStart.Add(ResendWindow)) {
			if existing.ResendCount >= MaxResends {
				return nil, ErrTooManyResends
			}
		}
	}

	code := generateCode()

	hash, err := bcrypt.GenerateFromPassword([]byte(code), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}

	// Calculate resend count and window start
	resendCount := 0
	windowStart := now
	if existingFound {
		// If within the window, carry over the count
		if now.Before(existing.WindowStart.Add(ResendWindow)) {
			windowStart = existing.WindowStart
			if isResend {
				resendCount = existing.ResendCount + 1
			} else {
				resendCount = existing.ResendCount
			}
		}
		// Otherwise, start fresh (window expired)
	}

	// Delete any existing challenges for this user
	_, _ = s.c.DeleteMany(ctx, bson.M{"user_id": userID})

	ch := Challenge{
		ID:          primitive.NewObjectID(),
		UserID:      userID,
		Phone:       phone,
		Channel:     channel,
		CodeHash:    string(hash),
		ExpiresAt:   now.Add(s.expiry),
		CreatedAt:   now,
		Attempts:    0,
		ResendCount: resendCount,
		WindowStart: windowStart,
	}

	if _, err := s.c.InsertOne(ctx, ch); err != nil {
		return nil, fmt.Errorf("insert mfa challenge: %w", err)
	}

	return &CreateResult{
		Code:        code,
		ResendCount: resendCount,
	}, nil
}

// VerifyCode verifies a code for a user and returns the challenge if valid.
// The record is deleted after successful verification.
// Returns ErrTooManyAttempts if the maximum number of attempts has been exceeded.
func (s *Store) VerifyCode(ctx context.Context, userID primitive.ObjectID, code string) (*Challenge, error) {
	now := time.Now()

	// Claiming an attempt and bounding the counter happen in one server
	// round trip, so concurrent verifies past the limit match nothing.
	// Both valid and invalid codes consume an attempt.
	var ch Challenge
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{
			"user_id":    userID,
			"expires_at": bson.M{"$gt": now},
			"attempts":   bson.M{"$lt": MaxVerifyAttempts},
		},
		bson.M{"$inc": bson.M{"attempts": 1}},
	).Decode(&ch)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			// A live challenge with no attempts left is distinct from a
			// missing or expired one.
			n, cntErr := s.c.CountDocuments(ctx, bson.M{
				"user_id":    userID,
				"expires_at": bson.M{"$gt": now},
			})
			if cntErr == nil && n > 0 {
				return nil, ErrTooManyAttempts
			}
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(ch.CodeHash), []byte(code)); err != nil {
		return nil, ErrInvalidCode
	}

	// Delete the challenge (single use)
	_, _ = s.c.DeleteOne(ctx, bson.M{"_id": ch.ID})

	return &ch, nil
}

// DeleteByUser deletes all challenges for a user.
func (s *Store) DeleteByUser(ctx context.Context, userID primitive.ObjectID) error {
	_, err := s.c.DeleteMany(ctx, bson.M{"user_id": userID})
	return err
}

// generateCode generates a random 6-digit numeric code.
// Panics if the system's cryptographic random number generator fails.
func generateCode() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand.Read failed: " + err.Error())
	}
	// Convert to a number and take last 6 digits
	n := int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
	if n < 0 {
		n = -n
	}
	// Ensure 6 digits (100000 to 999999)
	code := (n % 900000) + 100000
	return fmt.Sprintf("%06d", code)
}
