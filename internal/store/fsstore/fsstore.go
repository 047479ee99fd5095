// Package fsstore implements store.Store on Cloud Firestore. Active matches,
// sessions and users each live in their own top-level collection.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/store"
)

const (
	matchesCollection  = "activeMatches"
	sessionsCollection = "sessions"
	usersCollection    = "users"
)

type Store struct {
	client *firestore.Client
	log    *logrus.Logger
}

// NewApp initializes the Firebase Admin SDK. An empty credentialsFile falls
// back to Application Default Credentials.
func NewApp(ctx context.Context, projectID, credentialsFile string, logger *logrus.Logger) (*firebase.App, error) {
	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			logger.Warnf("credentials file %s: %v", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	} else {
		logger.Info("Initializing Firebase using application default credentials")
	}

	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	return app, nil
}

// Open returns a Store backed by the app's Firestore client.
func Open(ctx context.Context, app *firebase.App, logger *logrus.Logger) (*Store, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("app.Firestore: %w", err)
	}
	logger.Info("Firestore client initialized")
	return &Store{client: client, log: logger}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// RunTx runs fn inside a Firestore transaction. Firestore retries fn on
// contention, and every read must happen before the first write.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &fsTx{s: s, tx: tx})
	})
}

func (s *Store) matches() *firestore.CollectionRef  { return s.client.Collection(matchesCollection) }
func (s *Store) sessions() *firestore.CollectionRef { return s.client.Collection(sessionsCollection) }
func (s *Store) users() *firestore.CollectionRef    { return s.client.Collection(usersCollection) }

func (s *Store) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	snap, err := s.matches().Doc(id).Get(ctx)
	if err != nil {
		return nil, notFound(err, "match", id)
	}
	return decodeMatch(snap)
}

func (s *Store) ListMatches(ctx context.Context) ([]*models.Match, error) {
	iter := s.matches().OrderBy("date", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []*models.Match
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list matches: %w", err)
		}
		m, err := decodeMatch(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	snap, err := s.sessions().Doc(id).Get(ctx)
	if err != nil {
		return nil, notFound(err, "session", id)
	}
	return decodeSession(snap)
}

// ListSessions returns sessions newest first. The user filter runs client
// side since Firestore cannot OR two array-contains clauses with an ordering
// without a composite index.
func (s *Store) ListSessions(ctx context.Context, filter store.SessionFilter) ([]*models.Session, error) {
	q := s.sessions().OrderBy("date", firestore.Desc)
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*models.Session
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		sess, err := decodeSession(doc)
		if err != nil {
			return nil, err
		}
		if sess.IgnoredFromStats && !filter.IncludeIgnored {
			continue
		}
		if filter.UserID != "" && !sess.Involves(filter.UserID) {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, uid string) (*models.UserProfile, error) {
	snap, err := s.users().Doc(uid).Get(ctx)
	if err != nil {
		return nil, notFound(err, "user", uid)
	}
	return decodeUser(snap)
}

func (s *Store) ListUsers(ctx context.Context) ([]*models.UserProfile, error) {
	docs, err := s.users().Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]*models.UserProfile, 0, len(docs))
	for _, doc := range docs {
		u, err := decodeUser(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

// UpsertUser merges the profile fields so existing stats survive.
func (s *Store) UpsertUser(ctx context.Context, u *models.UserProfile) error {
	if u.UID == "" {
		return errors.New("upsert user: empty uid")
	}
	_, err := s.users().Doc(u.UID).Set(ctx, profileFields(u), firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("upsert user %q: %w", u.UID, err)
	}
	return nil
}

func (s *Store) IncrementStats(ctx context.Context, uid string, delta models.StatsDelta) error {
	if delta.IsZero() {
		return nil
	}
	_, err := s.users().Doc(uid).Set(ctx, statsIncrements(delta), firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("increment stats of user %q: %w", uid, err)
	}
	return nil
}

func (s *Store) SetStats(ctx context.Context, uid string, stats models.UserStats) error {
	_, err := s.users().Doc(uid).Update(ctx, []firestore.Update{{Path: "stats", Value: stats}})
	if err != nil {
		return notFound(err, "user", uid)
	}
	return nil
}

func decodeMatch(snap *firestore.DocumentSnapshot) (*models.Match, error) {
	var m models.Match
	if err := snap.DataTo(&m); err != nil {
		return nil, fmt.Errorf("decode match %q: %w", snap.Ref.ID, err)
	}
	m.ID = snap.Ref.ID
	if m.Participants == nil {
		m.Participants = []models.RosterEntry{}
	}
	if m.Reserves == nil {
		m.Reserves = []models.RosterEntry{}
	}
	return &m, nil
}

func decodeSession(snap *firestore.DocumentSnapshot) (*models.Session, error) {
	var sess models.Session
	if err := snap.DataTo(&sess); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", snap.Ref.ID, err)
	}
	sess.ID = snap.Ref.ID
	return &sess, nil
}

func decodeUser(snap *firestore.DocumentSnapshot) (*models.UserProfile, error) {
	var u models.UserProfile
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %q: %w", snap.Ref.ID, err)
	}
	u.UID = snap.Ref.ID
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	return &u, nil
}

// notFound maps a gRPC NotFound onto store.ErrNotFound.
func notFound(err error, kind, id string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %q: %w", kind, id, store.ErrNotFound)
	}
	return fmt.Errorf("get %s %q: %w", kind, id, err)
}

func profileFields(u *models.UserProfile) map[string]interface{} {
	return map[string]interface{}{
		"email":             u.Email,
		"displayName":       u.DisplayName,
		"customDisplayName": u.CustomDisplayName,
		"photoUrl":          u.PhotoURL,
		"role":              string(u.Role),
		"lastLogin":         u.LastLogin,
	}
}

// statsIncrements builds a merge document that adds the non-zero counters of
// delta server side.
func statsIncrements(d models.StatsDelta) map[string]interface{} {
	inc := map[string]interface{}{}
	add := func(field string, n int) {
		if n != 0 {
			inc[field] = firestore.Increment(n)
		}
	}
	add("totalSessions", d.TotalSessions)
	add("asParticipant", d.AsParticipant)
	add("asReserve", d.AsReserve)
	add("friendsBrought", d.FriendsBrought)
	return map[string]interface{}{"stats": inc}
}
