package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"cred-stock/internal/pkg/config"
)

const (
	defaultSendGridURL = "https://api.sendgrid.com/v3/mail/send"
	defaultMailTimeout = 10 * time.Second
)

// Mailer 外发邮件接口(凭据交付)
// 发送失败只作为交付失败记录, 不影响分配结果
type Mailer interface {
	SendEmail(ctx context.Context, toEmail, toName, subject, htmlContent string) error
}

// ============= SendGrid REST API 适配器 =============

// SendGridMailer 通过 SendGrid HTTPS API 发信
// 适用于SMTP出口被封的主机, 走443端口
type SendGridMailer struct {
	apiKey    string
	apiURL    string
	fromEmail string
	fromName  string
	logger    *zap.Logger
	client    *http.Client
}

// NewSendGridMailer 创建SendGrid邮件适配器
func NewSendGridMailer(cfg *config.MailConfig, logger *zap.Logger) *SendGridMailer {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultSendGridURL
	}

	timeout := defaultMailTimeout
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil {
			timeout = d
		}
	}

	return &SendGridMailer{
		apiKey:    cfg.APIKey,
		apiURL:    apiURL,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// SendEmail 发送一封HTML邮件
func (m *SendGridMailer) SendEmail(ctx context.Context, toEmail, toName, subject, htmlContent string) error {
	if m.apiKey == "" {
		return fmt.Errorf("未配置 SendGrid API Key (mail.api_key)")
	}
	if toEmail == "" {
		return fmt.Errorf("收件人邮箱为空")
	}

	to := map[string]interface{}{"email": toEmail}
	if toName != "" {
		to["name"] = toName
	}

	payload := map[string]interface{}{
		"personalizations": []interface{}{
			map[string]interface{}{
				"to":      []interface{}{to},
				"subject": subject,
			},
		},
		"from": map[string]interface{}{
			"email": m.fromEmail,
			"name":  m.fromName,
		},
		"content": []interface{}{
			map[string]interface{}{
				"type":  "text/html",
				"value": htmlContent,
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化邮件失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		// 超时同样算发送失败
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	// SendGrid 成功返回 202
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("SendGrid API返回错误状态码: %d, body: %s", resp.StatusCode, string(body))
	}

	m.logger.Info("邮件发送成功",
		zap.String("to", toEmail),
		zap.String("subject", subject))

	return nil
}

// ============= 日志邮件器(mail.enabled=false时使用) =============

// LogMailer 日志邮件器, 只记录不发送
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendEmail(ctx context.Context, toEmail, toName, subject, htmlContent string) error {
	m.logger.Info("📧 邮件(未实际发送)",
		zap.String("to", toEmail),
		zap.String("subject", subject))
	return nil
}
