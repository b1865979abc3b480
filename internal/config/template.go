package config

import "os"

// Template is the commented starter config written by `ticketbot config
// init`, mirroring the field names an operator configures in the
// original's human-edited config.toml.
const Template = `# ticketbot configuration

[network]
timeout = 4          # seconds, per-HTTP-call timeout
sleep = 0.8          # seconds, default request spacing
rest = 30            # seconds, pause after a 412 ban
proxy = ""           # optional proxy URL
requests_per_second = 0.0  # 0 disables the safety-net rate cap

[target]
project_id = 0
screen_id = 0
sku_id = 0
order_type = 1
count = 1

[identity]
phone = ""
uid = 0
username = ""
# buyer = [{ name = "...", id_card = "..." }]
# deliver = { province = "...", city = "...", address = "..." }

[notify]
system = false
sound = false
pushplus_token = ""
bark_token = ""
dingding_token = ""
wx_token = ""
ftqq_token = ""

# [notify.smtp]
# mail_host = "smtp.example.com"
# mail_port = 25
# mail_user = ""
# mail_pass = ""
# sender = ""
# receivers = []

[dashboard]
addr = "127.0.0.1:8787"  # local status dashboard (WebSocket + REST)

[archive]
dir = "debug-archive"
max_megabytes = 512
interval_minutes = 10
s3_bucket = ""   # empty disables S3 upload, local gzip rotation still runs
s3_region = "us-east-1"
s3_prefix = "ticketbot"

[journal]
mongo_uri = ""   # empty disables the audit-trail journal entirely
retention_days = 7

[challenge]
manual = false                           # false = automatic black-box solver
automatic_url = ""                       # solver endpoint, see internal/challenge
manual_page_url = "http://localhost:8788/geetest.html"
manual_headless = false
`

// WriteTemplate writes the starter config to path, failing if a file
// already exists there.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.ErrExist
	}
	return os.WriteFile(path, []byte(Template), 0o600)
}
