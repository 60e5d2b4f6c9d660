// Package checker implements the permission check service: it
// authenticates the calling client, validates the subject's token,
// resolves effective permissions and answers per-scope decisions. Every
// check, including rejected ones, leaves an audit record.
package checker

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/sentinel-iam/sentinel/pkg/audit"
	"github.com/sentinel-iam/sentinel/pkg/directory"
	"github.com/sentinel-iam/sentinel/pkg/grants"
	"github.com/sentinel-iam/sentinel/pkg/observability"
	"github.com/sentinel-iam/sentinel/pkg/scope"
	"github.com/sentinel-iam/sentinel/pkg/token"
)

// TokenValidator verifies bearer tokens; *token.Validator implements it
type TokenValidator interface {
	Validate(ctx context.Context, rawToken string) (*token.Claims, error)
}

// DirectoryReader is the subset of the directory the checker reads
type DirectoryReader interface {
	GetClient(ctx context.Context, clientID string) (*directory.Client, error)
	GetUser(ctx context.Context, userID string) (*directory.User, error)
}

// PermissionResolver computes effective permissions; *grants.Resolver
// implements it
type PermissionResolver interface {
	ResolveResource(ctx context.Context, userID, clientID, resourceCode string) ([]grants.EffectivePermission, error)
	ResolveAll(ctx context.Context, userID string) ([]grants.EffectivePermission, error)
}

// ServiceConfig wires the checker's collaborators
type ServiceConfig struct {
	Directory DirectoryReader
	Resolver  PermissionResolver
	Validator TokenValidator
	Audit     audit.Logger
	Cache     PermissionCache
	Metrics   *observability.Metrics
	Logger    *observability.Logger
	// AllowPlaintextSecrets permits plaintext client secret rows. Never
	// enabled in production.
	AllowPlaintextSecrets bool
}

// Service performs permission checks
type Service struct {
	directory             DirectoryReader
	resolver              PermissionResolver
	validator             TokenValidator
	audit                 audit.Logger
	cache                 PermissionCache
	metrics               *observability.Metrics
	logger                *observability.Logger
	allowPlaintextSecrets bool
}

// NewService creates a permission check service
func NewService(cfg ServiceConfig) *Service {
	if cfg.Audit == nil {
		cfg.Audit = audit.NopLogger{}
	}
	if cfg.Cache == nil {
		cfg.Cache = NopPermissionCache{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}
	return &Service{
		directory:             cfg.Directory,
		resolver:              cfg.Resolver,
		validator:             cfg.Validator,
		audit:                 cfg.Audit,
		cache:                 cfg.Cache,
		metrics:               cfg.Metrics,
		logger:                cfg.Logger,
		allowPlaintextSecrets: cfg.AllowPlaintextSecrets,
	}
}

// stageError is a terminal failure from one pipeline stage, before the
// response shape is known
type stageError struct {
	code    string
	message string
}

// Check runs the full permission check pipeline. It always returns a
// response; the error code inside the response determines the HTTP status.
func (s *Service) Check(ctx context.Context, req *CheckRequest, meta RequestMeta) *CheckResponse {
	start := time.Now()

	record := &audit.PermissionCheckLog{
		ClientID:  req.ClientID,
		Resource:  req.Resource,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
	}

	resp := s.check(ctx, req, record)

	record.Allowed = resp.Allowed
	record.ErrorCode = resp.ErrorCode
	record.ErrorMessage = resp.ErrorMessage
	record.ProcessingTimeMs = time.Since(start).Milliseconds()
	s.writeAudit(ctx, record)

	if s.metrics != nil {
		s.metrics.RecordPermissionCheck(resp.Allowed, resp.ErrorCode, time.Since(start))
	}

	return resp
}

func (s *Service) check(ctx context.Context, req *CheckRequest, record *audit.PermissionCheckLog) *CheckResponse {
	// The requested scope set is resolved before anything else so that
	// even failed checks answer with every requested scope denied.
	requested := scope.Decode(req.Scopes)
	if len(requested) == 0 {
		requested = scope.StandardSet()
	}
	record.RequestedScopes = scope.Encode(requested)

	// Stage 1: validate inputs.
	if stageErr := validateCheckInputs(req); stageErr != nil {
		return failure(requested, stageErr)
	}

	// Stage 2: validate client credentials.
	if stageErr := s.validateClient(ctx, req.ClientID, req.ClientSecret); stageErr != nil {
		return failure(requested, stageErr)
	}

	// Stage 3: validate the subject's token.
	claims, stageErr := s.validateToken(ctx, req.Token())
	if stageErr != nil {
		return failure(requested, stageErr)
	}
	record.SubjectID = claims.Subject

	// Stage 4: the subject must exist in the directory.
	if stageErr := s.resolveSubject(ctx, claims.Subject); stageErr != nil {
		resp := failure(requested, stageErr)
		resp.SubjectID = claims.Subject
		resp.Resource = req.Resource
		return resp
	}

	// Stage 5: resolve effective permissions.
	perms, err := s.resolvePermissions(ctx, claims.Subject, req.ClientID, req.Resource)
	if err != nil {
		s.logger.WithError(err).Error("permission resolution failed")
		return failure(requested, &stageError{CodeServerError, "failed to resolve permissions"})
	}

	// Stage 6: build the per-scope result.
	granted := grants.UnionScopes(perms)
	record.GrantedScopes = scope.Encode(granted)

	decisions := make(map[string]ScopeDecision, len(requested))
	allowed := true
	for _, code := range requested.Codes() {
		ok := granted.Allows(code)
		decisions["@"+code] = ScopeDecision{Allowed: ok}
		if !ok {
			allowed = false
		}
	}

	return &CheckResponse{
		Allowed:   allowed,
		SubjectID: claims.Subject,
		Resource:  req.Resource,
		Scopes:    decisions,
	}
}

// Query resolves everything the subject can reach, across every system
func (s *Service) Query(ctx context.Context, req *QueryRequest, meta RequestMeta) *QueryResponse {
	start := time.Now()

	record := &audit.PermissionCheckLog{
		ClientID:  req.ClientID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
	}

	resp := s.query(ctx, req, record)

	record.Allowed = resp.ErrorCode == ""
	record.ErrorCode = resp.ErrorCode
	record.ErrorMessage = resp.ErrorMessage
	record.ProcessingTimeMs = time.Since(start).Milliseconds()
	record.SubjectID = resp.SubjectID
	s.writeAudit(ctx, record)

	return resp
}

func (s *Service) query(ctx context.Context, req *QueryRequest, record *audit.PermissionCheckLog) *QueryResponse {
	if req.ClientID == "" || req.ClientSecret == "" {
		return queryFailure(&stageError{CodeInvalidRequest, "clientId and clientSecret are required"})
	}
	if req.IDToken == "" || req.AccessToken == "" {
		return queryFailure(&stageError{CodeInvalidRequest, "idToken and accessToken are required"})
	}

	if stageErr := s.validateClient(ctx, req.ClientID, req.ClientSecret); stageErr != nil {
		return queryFailure(stageErr)
	}

	claims, stageErr := s.validateToken(ctx, req.Token())
	if stageErr != nil {
		return queryFailure(stageErr)
	}

	if stageErr := s.resolveSubject(ctx, claims.Subject); stageErr != nil {
		resp := queryFailure(stageErr)
		resp.SubjectID = claims.Subject
		return resp
	}

	perms, err := s.resolvePermissions(ctx, claims.Subject, "", "")
	if err != nil {
		s.logger.WithError(err).Error("permission resolution failed")
		resp := queryFailure(&stageError{CodeServerError, "failed to resolve permissions"})
		resp.SubjectID = claims.Subject
		return resp
	}

	return &QueryResponse{
		SubjectID: claims.Subject,
		Systems:   groupBySystem(perms),
	}
}

func validateCheckInputs(req *CheckRequest) *stageError {
	if req.ClientID == "" || req.ClientSecret == "" {
		return &stageError{CodeInvalidRequest, "clientId and clientSecret are required"}
	}
	if req.IDToken == "" || req.AccessToken == "" {
		return &stageError{CodeInvalidRequest, "idToken and accessToken are required"}
	}
	if req.Resource == "" {
		return &stageError{CodeInvalidRequest, "resource is required"}
	}
	return nil
}

func (s *Service) validateClient(ctx context.Context, clientID, clientSecret string) *stageError {
	client, err := s.directory.GetClient(ctx, clientID)
	if err != nil {
		s.logger.WithError(err).Error("client lookup failed")
		return &stageError{CodeServerError, "failed to look up client"}
	}
	if client == nil || !client.IsEnabled {
		return &stageError{CodeInvalidClient, "unknown or disabled client"}
	}
	if !VerifyClientSecret(clientSecret, client.SecretHashes, s.allowPlaintextSecrets) {
		return &stageError{CodeInvalidClient, "client credentials are invalid"}
	}
	return nil
}

func (s *Service) validateToken(ctx context.Context, rawToken string) (*token.Claims, *stageError) {
	claims, err := s.validator.Validate(ctx, rawToken)
	if err != nil {
		kind := token.KindOf(err)
		if s.metrics != nil {
			s.metrics.RecordTokenValidation(string(kind))
		}
		switch kind {
		case token.KindExpired:
			return nil, &stageError{CodeTokenExpired, "token has expired"}
		case token.KindRevoked:
			return nil, &stageError{CodeTokenRevoked, "token has been revoked"}
		case token.KindInvalidSignature:
			return nil, &stageError{CodeInvalidSignature, "token signature verification failed"}
		case token.KindInvalidIssuer:
			return nil, &stageError{CodeInvalidIssuer, "token issuer is not trusted"}
		case token.KindInvalidAudience:
			return nil, &stageError{CodeInvalidAudience, "token audience is not accepted"}
		case token.KindMalformed:
			return nil, &stageError{CodeInvalidToken, "token is malformed"}
		case token.KindConfiguration:
			s.logger.WithError(err).Error("issuer configuration failure")
			return nil, &stageError{CodeConfigurationError, "issuer configuration is unavailable"}
		default:
			s.logger.WithError(err).Error("token validation failed")
			return nil, &stageError{CodeServerError, "token validation failed"}
		}
	}
	if s.metrics != nil {
		s.metrics.RecordTokenValidation("valid")
	}
	if claims.Subject == "" {
		return nil, &stageError{CodeInvalidToken, "token has no subject"}
	}
	return claims, nil
}

func (s *Service) resolveSubject(ctx context.Context, subjectID string) *stageError {
	user, err := s.directory.GetUser(ctx, subjectID)
	if err != nil {
		s.logger.WithError(err).Error("user lookup failed")
		return &stageError{CodeServerError, "failed to look up user"}
	}
	if user == nil || !user.IsActive {
		return &stageError{CodeUserNotFound, "user does not exist"}
	}
	return nil
}

func (s *Service) resolvePermissions(ctx context.Context, userID, clientID, resource string) ([]grants.EffectivePermission, error) {
	if perms, ok := s.cache.Get(ctx, userID, clientID, resource); ok {
		if s.metrics != nil {
			s.metrics.RecordCacheHit("permissions")
		}
		return perms, nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheMiss("permissions")
	}

	var perms []grants.EffectivePermission
	var err error
	if resource == "" {
		perms, err = s.resolver.ResolveAll(ctx, userID)
	} else {
		perms, err = s.resolver.ResolveResource(ctx, userID, clientID, resource)
	}
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, userID, clientID, resource, perms)
	return perms, nil
}

// writeAudit persists the audit row. Sink failures never fail the check;
// they are logged and counted.
func (s *Service) writeAudit(ctx context.Context, record *audit.PermissionCheckLog) {
	if err := s.audit.LogCheck(ctx, record); err != nil {
		s.logger.WithError(err).Error("failed to write audit record")
		if s.metrics != nil {
			s.metrics.AuditWriteFailuresTotal.Inc()
		}
	}
}

// InvalidateGrantChange drops cached permissions affected by a grant
// change. User grants invalidate one user; group and organization grants
// can reach an unknown set of users, so they clear the whole cache.
func (s *Service) InvalidateGrantChange(ctx context.Context, subjectType grants.SubjectType, subjectID string) {
	if subjectType == grants.SubjectUser {
		s.cache.InvalidateUser(ctx, subjectID)
		return
	}
	s.cache.InvalidateAll(ctx)
}

// failure builds an error response shaped like a success response: every
// requested scope denied, each carrying the error code and description.
func failure(requested scope.Set, stageErr *stageError) *CheckResponse {
	decisions := make(map[string]ScopeDecision, len(requested))
	for _, code := range requested.Codes() {
		decisions["@"+code] = ScopeDecision{
			Allowed:          false,
			Error:            stageErr.code,
			ErrorDescription: stageErr.message,
		}
	}
	return &CheckResponse{
		Scopes:       decisions,
		ErrorCode:    stageErr.code,
		ErrorMessage: stageErr.message,
	}
}

func queryFailure(stageErr *stageError) *QueryResponse {
	return &QueryResponse{ErrorCode: stageErr.code, ErrorMessage: stageErr.message}
}

// groupBySystem folds effective permissions into system, then resource,
// then canonical sorted scope list
func groupBySystem(perms []grants.EffectivePermission) map[string]map[string][]string {
	merged := make(map[string]map[string]scope.Set)
	for _, p := range perms {
		byResource, ok := merged[p.System]
		if !ok {
			byResource = make(map[string]scope.Set)
			merged[p.System] = byResource
		}
		if set, ok := byResource[p.ResourceCode]; ok {
			byResource[p.ResourceCode] = set.Union(p.Scopes)
		} else {
			byResource[p.ResourceCode] = scope.NewSet(p.Scopes.Codes()...)
		}
	}

	systems := make(map[string]map[string][]string, len(merged))
	for system, byResource := range merged {
		systems[system] = make(map[string][]string, len(byResource))
		for code, set := range byResource {
			scopes := make([]string, 0, len(set))
			for _, c := range set.Codes() {
				scopes = append(scopes, "@"+c)
			}
			sort.Strings(scopes)
			systems[system][code] = scopes
		}
	}
	return systems
}
