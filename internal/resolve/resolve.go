// Package resolve turns the indirection in a WebhookConf/HeaderConf —
// a literal value or an environment variable name — into the literal
// string the processor actually sends, matching spec §6's
// resolve_webhook/get_header_infos_from_conf contracts.
package resolve

import (
	"fmt"
	"os"

	"github.com/triggerd/engine/internal/domain"
)

var ErrEnvNotSet = fmt.Errorf("referenced environment variable is not set")

// Webhook resolves a WebhookConf to the URL to invoke.
func Webhook(conf domain.WebhookConf) (string, error) {
	if conf.FromEnv != "" {
		v, ok := os.LookupEnv(conf.FromEnv)
		if !ok {
			return "", fmt.Errorf("webhook %w: %s", ErrEnvNotSet, conf.FromEnv)
		}
		return v, nil
	}
	return conf.Value, nil
}

// Headers resolves a HeaderConf slice into the literal header map sent
// with the webhook request. A header whose FromEnv variable is unset
// fails the whole resolution, since a missing header reference is an
// internal error rather than an optional one.
func Headers(confs []domain.HeaderConf) (map[string]string, error) {
	out := make(map[string]string, len(confs))
	for _, c := range confs {
		if c.FromEnv != "" {
			v, ok := os.LookupEnv(c.FromEnv)
			if !ok {
				return nil, fmt.Errorf("header %q %w: %s", c.Name, ErrEnvNotSet, c.FromEnv)
			}
			out[c.Name] = v
			continue
		}
		out[c.Name] = c.Value
	}
	return out, nil
}
