package domain

import "time"

// CronTriggerDefinition is one row of the trigger-definition catalog:
// a cron expression bound to a webhook, a static payload, a header
// set, a retry policy, and an operator comment. The generator and
// processor only ever see a read-only snapshot of these, supplied by
// the catalog package.
type CronTriggerDefinition struct {
	Name        string
	Schedule    string // standard 5-field cron expression
	Webhook     WebhookConf
	Payload     []byte // raw JSON, nil means null
	RetryConf   RetryConf
	HeaderConf  []HeaderConf
	Comment     *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SchemaCache is the snapshot the generator and processor read once per
// loop iteration, mirroring spec's get_schema_cache() collaborator.
type SchemaCache struct {
	CronTriggers map[string]CronTriggerDefinition
}

func (c SchemaCache) Lookup(name string) (CronTriggerDefinition, bool) {
	d, ok := c.CronTriggers[name]
	return d, ok
}
