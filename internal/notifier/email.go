package notifier

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
)

// EmailConfig 邮件配置。
type EmailConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	From     string `yaml:"from" json:"from"`
}

// Enabled 判断 SMTP 配置是否完整。
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.Port != 0 && c.From != ""
}

// EmailMessage 表示一封邮件。
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// EmailSender 抽象发送接口，便于测试替换。
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// Sender 按模板发送消息，data 为模板数据。
type Sender interface {
	Send(ctx context.Context, to, templateID string, data map[string]any) error
}

// SMTPClient 封装 SMTP 发送。
type SMTPClient struct {
	addr string
	auth smtp.Auth
}

func NewSMTPClient(cfg EmailConfig) *SMTPClient {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPClient{addr: addr, auth: auth}
}

func (c *SMTPClient) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := buildEmailData(msg)
	return smtp.SendMail(c.addr, c.auth, msg.From, msg.To, []byte(data))
}

// TemplateMatchFound 为高分匹配邮件模板。
const TemplateMatchFound = "match_found"

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var builtinTemplates = map[string][2]string{
	TemplateMatchFound: {
		`New match for "{{.search_title}}" ({{.score}}/100)`,
		`We found a listing that matches your search "{{.search_title}}".

Listing: {{.candidate_title}}
Score: {{.score}}/100
Why: {{.reasons}}

View it: {{.link}}
`,
	},
}

// Mailer 将模板渲染为邮件并通过 EmailSender 发送，实现 Sender。
type Mailer struct {
	from      string
	sender    EmailSender
	templates map[string]emailTemplate
}

// NewMailer 创建 Mailer，未提供 sender 时使用 SMTP。
func NewMailer(cfg EmailConfig, sender EmailSender) (*Mailer, error) {
	if sender == nil {
		sender = NewSMTPClient(cfg)
	}
	templates := make(map[string]emailTemplate, len(builtinTemplates))
	for id, src := range builtinTemplates {
		subject, err := template.New(id + "_subject").Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", id, err)
		}
		body, err := template.New(id + "_body").Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", id, err)
		}
		templates[id] = emailTemplate{subject: subject, body: body}
	}
	return &Mailer{from: cfg.From, sender: sender, templates: templates}, nil
}

// Send 渲染模板并发送给单个收件人。
func (m *Mailer) Send(ctx context.Context, to, templateID string, data map[string]any) error {
	tpl, ok := m.templates[templateID]
	if !ok {
		return fmt.Errorf("unknown email template %q", templateID)
	}
	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return fmt.Errorf("render %s subject: %w", templateID, err)
	}
	if err := tpl.body.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s body: %w", templateID, err)
	}
	return m.sender.Send(ctx, EmailMessage{
		From:    m.from,
		To:      []string{to},
		Subject: strings.TrimSpace(subject.String()),
		Body:    body.String(),
	})
}

func buildEmailData(msg EmailMessage) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", msg.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ",")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	return b.String()
}
