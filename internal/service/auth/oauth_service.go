package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/adapter/notify"
	"github.com/smallbiznis/valora-onboard/internal/adapter/platform"
	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/repository"
)

const inviteMaxAge = 5 * time.Minute

// SettingsSource yields the effective deployment settings.
type SettingsSource interface {
	Current(ctx context.Context) domain.Settings
}

// Options holds the OAuth client registration used to build authorization URLs.
type Options struct {
	ClientID     string
	RedirectURI  string
	AuthorizeURL string
	Scopes       []string
}

// StartInput identifies who is starting the authorization and from which group.
type StartInput struct {
	SubjectID string
	GroupID   string
}

// StartOutput returns the prepared authorization URL.
type StartOutput struct {
	AuthorizationURL string
	State            string
}

// CallbackInput captures callback query parameters.
type CallbackInput struct {
	Code  string
	State string
}

// CallbackResult describes the outcome shown on the success page.
type CallbackResult struct {
	SubjectID   string
	DisplayName string
	Joined      []string
	InviteCode  string
}

// Service runs the authorization flow that adds subjects to the credential pool.
type Service struct {
	states      *StateManager
	platform    platform.Client
	credentials repository.CredentialStore
	settings    SettingsSource
	notifier    notify.Notifier
	opts        Options
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(
	states *StateManager,
	client platform.Client,
	credentials repository.CredentialStore,
	settings SettingsSource,
	notifier notify.Notifier,
	opts Options,
	logger *zap.Logger,
) *Service {
	return &Service{
		states:      states,
		platform:    client,
		credentials: credentials,
		settings:    settings,
		notifier:    notifier,
		opts:        opts,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start issues a state token and builds the platform authorization URL.
func (s *Service) Start(ctx context.Context, in StartInput) (*StartOutput, error) {
	authURL, err := url.Parse(s.opts.AuthorizeURL)
	if err != nil {
		return nil, fmt.Errorf("parse authorize url: %w", err)
	}
	if authURL.Host == "" {
		return nil, fmt.Errorf("authorize url %q has no host", s.opts.AuthorizeURL)
	}

	state, err := s.states.Issue(ctx, in.SubjectID, in.GroupID)
	if err != nil {
		return nil, err
	}

	scopes := s.opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{"identify", "guilds.join"}
	}
	params := authURL.Query()
	params.Set("client_id", s.opts.ClientID)
	params.Set("redirect_uri", s.opts.RedirectURI)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("state", state)
	authURL.RawQuery = params.Encode()

	return &StartOutput{AuthorizationURL: authURL.String(), State: state}, nil
}

// HandleCallback completes an authorization: it validates the state, stores the
// credential and joins the subject to the origin and primary groups.
func (s *Service) HandleCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, onboard.ErrMissingCode
	}

	state, err := s.states.Consume(ctx, in.State)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, onboard.ErrInvalidState
	}

	grant, err := s.platform.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	identity, err := s.platform.FetchIdentity(ctx, grant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch identity: %w", err)
	}
	if !state.Wildcard() && state.SubjectID != identity.ID {
		s.log().Warn("authorization identity mismatch",
			zap.String("expected_subject", state.SubjectID),
			zap.String("actual_subject", identity.ID),
		)
		return nil, onboard.ErrIdentityMismatch
	}

	settings := s.settings.Current(ctx)
	record := domain.CredentialRecord{
		SubjectID:    identity.ID,
		DisplayName:  identity.Username,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		IssuedAt:     s.now(),
	}
	if settings.MainGroupID != "" && settings.VerifiedRoleID != "" {
		record.GrantedRoles = []string{settings.VerifiedRoleID}
	}
	if err := s.credentials.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	result := &CallbackResult{SubjectID: identity.ID, DisplayName: identity.Username}
	for _, target := range joinTargets(state.OriginGroupID, settings) {
		err := s.join(ctx, target, identity.ID, grant.AccessToken)
		if err == nil {
			result.Joined = append(result.Joined, target.groupID)
			continue
		}
		s.log().Warn("join after authorization failed",
			zap.String("subject_id", identity.ID),
			zap.String("group_id", target.groupID),
			zap.Error(err),
		)
		if target.groupID == state.OriginGroupID && !errors.Is(err, onboard.ErrCredentialInvalid) {
			result.InviteCode = s.fallbackInvite(ctx, target.groupID)
		}
	}

	if settings.MainGroupID != "" && slices.Contains(result.Joined, settings.MainGroupID) {
		s.announce(ctx, settings, identity, state.OriginGroupID)
	}
	s.log().Info("subject authorized",
		zap.String("subject_id", identity.ID),
		zap.String("origin_group_id", state.OriginGroupID),
		zap.Strings("joined", result.Joined),
	)
	return result, nil
}

type joinTarget struct {
	groupID string
	roles   []string
}

// joinTargets lists the origin group and the primary group once each; only the
// primary group carries the verified role.
func joinTargets(originGroupID string, settings domain.Settings) []joinTarget {
	var roles []string
	if settings.VerifiedRoleID != "" {
		roles = []string{settings.VerifiedRoleID}
	}
	var targets []joinTarget
	if originGroupID != "" && originGroupID != settings.MainGroupID {
		targets = append(targets, joinTarget{groupID: originGroupID})
	}
	if settings.MainGroupID != "" {
		targets = append(targets, joinTarget{groupID: settings.MainGroupID, roles: roles})
	}
	return targets
}

func (s *Service) join(ctx context.Context, target joinTarget, subjectID, accessToken string) error {
	err := s.platform.AddMember(ctx, target.groupID, subjectID, accessToken, target.roles)
	if !errors.Is(err, onboard.ErrAlreadyMember) {
		return err
	}
	for _, role := range target.roles {
		if err := s.platform.AddRole(ctx, target.groupID, subjectID, role); err != nil {
			return fmt.Errorf("add role %s: %w", role, err)
		}
	}
	return nil
}

func (s *Service) fallbackInvite(ctx context.Context, groupID string) string {
	group, err := s.platform.ResolveGroup(ctx, groupID)
	if err != nil {
		s.log().Warn("invite fallback: resolve group failed", zap.String("group_id", groupID), zap.Error(err))
		return ""
	}
	code, err := s.platform.CreateInvite(ctx, group.SystemChannelID, inviteMaxAge)
	if err != nil {
		s.log().Warn("invite fallback: create invite failed", zap.String("group_id", groupID), zap.Error(err))
		return ""
	}
	return code
}

func (s *Service) announce(ctx context.Context, settings domain.Settings, identity *onboard.Identity, originGroupID string) {
	if s.notifier == nil || settings.LogWebhookURL == "" {
		return
	}
	event := notify.Event{
		Title:     "New member verified",
		Color:     notify.ColorSuccess,
		Timestamp: s.now(),
		Fields: []notify.Field{
			{Name: "User", Value: identity.Username, Inline: true},
			{Name: "ID", Value: identity.ID, Inline: true},
		},
	}
	if originGroupID != "" {
		event.Fields = append(event.Fields, notify.Field{Name: "Origin group", Value: originGroupID})
	}
	if err := s.notifier.Notify(ctx, settings.LogWebhookURL, event); err != nil {
		s.log().Warn("verification notice not delivered", zap.String("subject_id", identity.ID), zap.Error(err))
	}
}

func (s *Service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
