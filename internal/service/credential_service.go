package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	coreCredential "cred-stock/internal/core/credential"
	"cred-stock/internal/dto"
	"cred-stock/internal/model"
	"cred-stock/internal/pkg/crypto"
	"cred-stock/internal/repository"
	"cred-stock/pkg/constants"
	pkgErrors "cred-stock/pkg/responses"
)

// CredentialService 凭据后台管理: 录入/查询/更新/停用, 以及运营侧的状态流转
// 明文密码只在两个地方出现: 录入时加密前, 特权查看接口解密后
type CredentialService struct {
	credRepo  *repository.CredentialRepository
	auditRepo *repository.AuditLogRepository
	sm        *coreCredential.StateMachine
	aesKey    string
	logger    *zap.Logger
}

func NewCredentialService(
	credRepo *repository.CredentialRepository,
	auditRepo *repository.AuditLogRepository,
	sm *coreCredential.StateMachine,
	aesKey string,
	logger *zap.Logger,
) *CredentialService {
	return &CredentialService{
		credRepo:  credRepo,
		auditRepo: auditRepo,
		sm:        sm,
		aesKey:    aesKey,
		logger:    logger,
	}
}

// Create 录入一条凭据, 初始状态available
func (s *CredentialService) Create(req *dto.CreateCredentialRequest) (*dto.CredentialResponse, error) {
	if req.Secret == "" {
		return nil, pkgErrors.ErrEmptySecret
	}

	encrypted, err := crypto.EncryptSecret(s.aesKey, req.Secret)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeCryptoError, "加密凭据失败", err)
	}

	cred := &model.Credential{
		ProductID:       req.ProductID,
		Login:           req.Login,
		SecretEncrypted: encrypted,
		State:           constants.CredentialStateAvailable,
		Active:          true,
		Notes:           req.Notes,
	}
	if err := s.credRepo.Create(cred); err != nil {
		return nil, err
	}

	s.logger.Info("凭据已录入",
		zap.Int64("credential_id", cred.ID),
		zap.Int64("product_id", cred.ProductID),
		zap.String("login", cred.Login))
	return dto.NewCredentialResponse(cred, nil), nil
}

func (s *CredentialService) Get(id int64) (*dto.CredentialResponse, error) {
	cred, err := s.credRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	return dto.NewCredentialResponse(cred, nil), nil
}

// List 分页查询凭据, 预加载产品用于展示产品名
func (s *CredentialService) List(q *dto.ListCredentialQuery) ([]*dto.CredentialResponse, int64, error) {
	query := &repository.ListQuery{
		ProductID: q.ProductID,
		State:     q.State,
		Active:    q.Active,
		Keyword:   q.Keyword,
		Offset:    q.GetOffset(),
		Limit:     q.GetPageSize(),
	}

	list, total, err := s.credRepo.List(query, repository.WithPreload("Product"))
	if err != nil {
		return nil, 0, err
	}

	responses := lo.Map(list, func(c *model.Credential, _ int) *dto.CredentialResponse {
		return dto.NewCredentialResponse(c, c.Product)
	})
	return responses, total, nil
}

// Update 更新登录名/密码/备注
// 状态与订单行绑定不能从这里改, 必须走状态流转接口
func (s *CredentialService) Update(id int64, req *dto.UpdateCredentialRequest) (*dto.CredentialResponse, error) {
	cred, err := s.credRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if req.Login != "" {
		cred.Login = req.Login
	}
	if req.Secret != "" {
		encrypted, err := crypto.EncryptSecret(s.aesKey, req.Secret)
		if err != nil {
			return nil, pkgErrors.Wrap(pkgErrors.CodeCryptoError, "加密凭据失败", err)
		}
		cred.SecretEncrypted = encrypted
	}
	if req.Notes != nil {
		cred.Notes = *req.Notes
	}

	if err := s.credRepo.Update(cred); err != nil {
		return nil, err
	}
	return dto.NewCredentialResponse(cred, nil), nil
}

// Deactivate 停用凭据(不物理删除, 保留审计)
// 已分配的凭据不允许停用, 先走流转释放
func (s *CredentialService) Deactivate(id int64) error {
	cred, err := s.credRepo.GetByID(id)
	if err != nil {
		return err
	}
	if cred.State == constants.CredentialStateAssigned {
		return pkgErrors.New(pkgErrors.CodeInvalidTransition, "已分配的凭据不允许停用, 请先释放")
	}
	return s.credRepo.Deactivate(id)
}

// RevealSecret 特权接口: 返回明文密码
// 调用一律记日志, 谁在什么时候看过哪条凭据要可追溯
func (s *CredentialService) RevealSecret(id int64, operator string) (*dto.CredentialSecretResponse, error) {
	cred, err := s.credRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	secret, err := crypto.DecryptSecret(s.aesKey, cred.SecretEncrypted)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeCryptoError, "解密凭据失败", err)
	}

	s.logger.Warn("明文凭据被查看",
		zap.Int64("credential_id", id),
		zap.String("operator", lo.Ternary(operator != "", operator, "unknown")))

	return &dto.CredentialSecretResponse{
		ID:     cred.ID,
		Login:  cred.Login,
		Secret: secret,
	}, nil
}

// ================== 运营状态流转 ==================

// MarkPendingReset assigned -> pending_reset, 客户退订/到期后由运营标记
func (s *CredentialService) MarkPendingReset(ctx context.Context, id int64, op *dto.OperatorRequest) error {
	return s.transition(ctx, id, constants.CredentialStatePendingReset, op)
}

// Reset pending_reset -> available, 账号密码已在服务商侧重置完成, 凭据回池
// 新密码另行通过更新接口写入
func (s *CredentialService) Reset(ctx context.Context, id int64, op *dto.OperatorRequest) error {
	return s.transition(ctx, id, constants.CredentialStateAvailable, op)
}

// ForceExpire assigned -> expired, 运营强制过期
func (s *CredentialService) ForceExpire(ctx context.Context, id int64, op *dto.OperatorRequest) error {
	return s.transition(ctx, id, constants.CredentialStateExpired, op)
}

// MakeAvailable assigned -> available 的强制释放, 仍绑定订单行时会被状态机拒绝
func (s *CredentialService) MakeAvailable(ctx context.Context, id int64, op *dto.OperatorRequest) error {
	return s.transition(ctx, id, constants.CredentialStateAvailable, op)
}

func (s *CredentialService) transition(ctx context.Context, id int64, to constants.CredentialState, op *dto.OperatorRequest) error {
	cred, err := s.credRepo.GetByID(id)
	if err != nil {
		return err
	}
	return s.sm.ChangeState(ctx, cred, to, coreCredential.SourceOutside,
		coreCredential.WithOperator(op.Operator),
		coreCredential.WithNote(op.Note))
}

// ListAuditLogs 查询凭据的流转历史
func (s *CredentialService) ListAuditLogs(id int64) ([]*dto.AuditLogResponse, error) {
	if _, err := s.credRepo.GetByID(id); err != nil {
		return nil, err
	}

	logs, err := s.auditRepo.ListByCredential(id)
	if err != nil {
		return nil, err
	}

	return lo.Map(logs, func(l *model.AuditLog, _ int) *dto.AuditLogResponse {
		return &dto.AuditLogResponse{
			ID:        l.ID,
			FromState: string(l.FromState),
			ToState:   string(l.ToState),
			Operator:  l.Operator,
			Note:      l.Note,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		}
	}), nil
}

