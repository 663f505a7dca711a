package logger

import (
	"os"

	"github.com/sirupsen/logrus"

	"wechat_qrlogin/config"
)

// New 按配置创建 logrus 日志，级别无法解析时退回 info
func New(cfg config.LoggingConfig) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if err != nil && cfg.Level != "" {
		l.WithField("level", cfg.Level).Warn("无法识别的日志级别，使用 info")
	}
	return l
}
