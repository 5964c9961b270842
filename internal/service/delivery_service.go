package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"text/template"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"cred-stock/internal/adapter/notification"
	"cred-stock/internal/model"
	"cred-stock/internal/pkg/crypto"
	"cred-stock/internal/repository"
	"cred-stock/pkg/constants"
	pkgErrors "cred-stock/pkg/responses"
)

const mailTemplateAssigned = "credential_assigned"

// mailTemplate 邮件模板(subject/body 都是 text/template)
type mailTemplate struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// mailTemplateData 模板渲染上下文
type mailTemplateData struct {
	ProductName  string
	Login        string
	Secret       string
	CustomerName string
	ExpiresAt    string
}

// DeliveryService 凭据交付: 渲染邮件并通过外部邮件通道发送, 结果记录在凭据上
// 交付失败不回滚分配, 运营可通过重发接口补发
type DeliveryService struct {
	credRepo    *repository.CredentialRepository
	productRepo *repository.ProductRepository
	mailer      notification.Mailer
	aesKey      string
	logger      *zap.Logger

	templates map[string]*mailTemplate
}

func NewDeliveryService(
	credRepo *repository.CredentialRepository,
	productRepo *repository.ProductRepository,
	mailer notification.Mailer,
	aesKey string,
	templateFile string,
	logger *zap.Logger,
) (*DeliveryService, error) {
	templates, err := loadMailTemplates(templateFile)
	if err != nil {
		return nil, err
	}

	return &DeliveryService{
		credRepo:    credRepo,
		productRepo: productRepo,
		mailer:      mailer,
		aesKey:      aesKey,
		logger:      logger,
		templates:   templates,
	}, nil
}

// loadMailTemplates 从yaml文件加载邮件模板, 未配置文件时使用内置模板
func loadMailTemplates(path string) (map[string]*mailTemplate, error) {
	templates := map[string]*mailTemplate{
		mailTemplateAssigned: {
			Subject: "您购买的 {{.ProductName}} 账号已开通",
			Body: "<p>{{if .CustomerName}}{{.CustomerName}}, 您好:{{else}}您好:{{end}}</p>" +
				"<p>您购买的 <b>{{.ProductName}}</b> 服务账号如下:</p>" +
				"<p>账号: <b>{{.Login}}</b><br/>密码: <b>{{.Secret}}</b></p>" +
				"{{if .ExpiresAt}}<p>有效期至: {{.ExpiresAt}}</p>{{end}}",
		},
	}

	if path == "" {
		return templates, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取邮件模板文件失败: %w", err)
	}

	loaded := map[string]*mailTemplate{}
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return nil, fmt.Errorf("解析邮件模板文件失败: %w", err)
	}

	// 文件中的模板覆盖内置默认
	for name, tpl := range loaded {
		templates[name] = tpl
	}
	return templates, nil
}

// DeliverCredential 把登录信息发给客户, 并把交付结果记录到凭据上
// 返回错误表示交付失败, 但调用方不应因此回滚分配
func (s *DeliveryService) DeliverCredential(ctx context.Context, cred *model.Credential) error {
	if cred.ContactEmail() == "" {
		s.recordDeliveryFailure(cred, "客户没有配置联系邮箱")
		return pkgErrors.ErrNoContactEmail
	}

	subject, body, err := s.renderAssignedMail(cred)
	if err != nil {
		s.recordDeliveryFailure(cred, err.Error())
		return pkgErrors.Wrap(pkgErrors.CodeDeliveryError, "渲染凭据邮件失败", err)
	}

	toName := ""
	if cred.CustomerName != nil {
		toName = *cred.CustomerName
	}

	if err := s.mailer.SendEmail(ctx, cred.ContactEmail(), toName, subject, body); err != nil {
		s.recordDeliveryFailure(cred, err.Error())
		s.logger.Error("凭据邮件发送失败",
			zap.Int64("credential_id", cred.ID),
			zap.String("to", cred.ContactEmail()),
			zap.Error(err))
		return pkgErrors.Wrap(pkgErrors.CodeDeliveryError, "凭据邮件发送失败", err)
	}

	now := time.Now()
	cred.DeliveryStatus = constants.DeliveryStatusSent
	cred.DeliveryError = nil
	cred.DeliveredAt = &now
	if err := s.credRepo.Update(cred); err != nil {
		// 邮件已发出, 记录失败只影响后台展示
		s.logger.Error("记录交付结果失败", zap.Int64("credential_id", cred.ID), zap.Error(err))
	}

	s.logger.Info("凭据已交付",
		zap.Int64("credential_id", cred.ID),
		zap.String("login", cred.Login),
		zap.String("to", cred.ContactEmail()))
	return nil
}

// Resend 人工重发凭据邮件
// 仅限assigned状态; 没有联系邮箱时直接报错, 不做任何发送尝试
func (s *DeliveryService) Resend(ctx context.Context, credentialID int64) error {
	cred, err := s.credRepo.GetByID(credentialID)
	if err != nil {
		return err
	}

	if cred.State != constants.CredentialStateAssigned {
		return pkgErrors.New(pkgErrors.CodeInvalidTransition, "只能重发已分配凭据的邮件")
	}
	if cred.ContactEmail() == "" {
		return pkgErrors.ErrNoContactEmail
	}

	return s.DeliverCredential(ctx, cred)
}

// renderAssignedMail 渲染凭据交付邮件
func (s *DeliveryService) renderAssignedMail(cred *model.Credential) (subject, body string, err error) {
	tpl, ok := s.templates[mailTemplateAssigned]
	if !ok {
		return "", "", fmt.Errorf("缺少邮件模板: %s", mailTemplateAssigned)
	}

	secret, err := crypto.DecryptSecret(s.aesKey, cred.SecretEncrypted)
	if err != nil {
		return "", "", fmt.Errorf("解密凭据失败: %w", err)
	}

	product, err := s.productRepo.GetByID(cred.ProductID)
	if err != nil {
		return "", "", err
	}

	data := &mailTemplateData{
		ProductName: product.Name,
		Login:       cred.Login,
		Secret:      secret,
	}
	if cred.CustomerName != nil {
		data.CustomerName = *cred.CustomerName
	}
	if cred.ExpiresAt != nil {
		data.ExpiresAt = cred.ExpiresAt.Format("2006-01-02 15:04")
	}

	subject, err = renderTemplate("subject", tpl.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err = renderTemplate("body", tpl.Body, data)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func renderTemplate(name, text string, data *mailTemplateData) (string, error) {
	t, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("解析模板 %s 失败: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("渲染模板 %s 失败: %w", name, err)
	}
	return buf.String(), nil
}

// recordDeliveryFailure 把失败原因记录到凭据上, 状态保持assigned
func (s *DeliveryService) recordDeliveryFailure(cred *model.Credential, reason string) {
	cred.DeliveryStatus = constants.DeliveryStatusFailed
	cred.DeliveryError = &reason
	if err := s.credRepo.Update(cred); err != nil {
		s.logger.Error("记录交付失败原因失败", zap.Int64("credential_id", cred.ID), zap.Error(err))
	}
}
