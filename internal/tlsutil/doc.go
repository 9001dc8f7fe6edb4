// Package tlsutil 提供诊断服务使用的 TLS 配置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
