package jobspec

import (
	"encoding/json"
	"net/url"
)

// ExtractWebhook reads the webhook block from a document that may have failed
// validation. It returns nil unless the block has a usable http(s) URL.
func ExtractWebhook(raw []byte) *Webhook {
	var doc struct {
		Notifications struct {
			Webhook *Webhook `json:"webhook"`
		} `json:"notifications"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	wh := doc.Notifications.Webhook
	if wh == nil {
		return nil
	}
	u, err := url.Parse(wh.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil
	}
	if wh.Method != "PUT" {
		wh.Method = "POST"
	}
	return wh
}
