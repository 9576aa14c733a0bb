package web

import (
	"encoding/xml"
	"net/http"

	"lifesign/internal/metrics"
	"lifesign/internal/provider"
	"lifesign/internal/update"
)

const maxWebhookBody = 1 << 20 // 1MB

// twimlResponse is the provider's expected XML reply to a message webhook.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// handleWebhook processes the provider's inbound-message notification. A
// forged signature is the only request that gets an error status; everything
// past that point is acknowledged generically so unauthenticated callers
// learn nothing about internal state.
func (s *Server) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(rw, r.Body, maxWebhookBody)
	if err := r.ParseForm(); err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}

	sig := r.Header.Get("X-Twilio-Signature")
	requestURL := s.publicURL + r.URL.RequestURI()
	if !provider.ValidateSignature(s.authToken, requestURL, r.PostForm, sig) {
		s.logger.Warn("webhook rejected: invalid signature", "remote", r.RemoteAddr)
		metrics.WebhooksRejected.Inc()
		http.Error(rw, "Forbidden", http.StatusForbidden)
		return
	}

	from := r.PostForm.Get("From")
	if from != s.trustedNumber {
		s.logger.Warn("webhook from untrusted sender", "from", from)
		s.writeTwiML(rw, "This number is not being watched.")
		return
	}

	s.logger.Info("webhook received", "message_sid", r.PostForm.Get("MessageSid"),
		"num_media", r.PostForm.Get("NumMedia"))

	// Same pipeline as the scheduled poll: the notification is only a
	// trigger, never the source of truth for what to download.
	res, err := s.orch.Refresh(r.Context(), update.TriggerWebhook)
	switch {
	case err != nil:
		s.logger.Error("webhook-triggered refresh failed", "err", err)
		s.writeTwiML(rw, "Could not process that photo.")
	case res.Performed:
		s.writeTwiML(rw, "Photo updated. Thanks!")
	default:
		s.writeTwiML(rw, "Already up to date.")
	}
}

func (s *Server) writeTwiML(rw http.ResponseWriter, message string) {
	rw.Header().Set("Content-Type", "text/xml; charset=utf-8")
	rw.Write([]byte(xml.Header))
	if err := xml.NewEncoder(rw).Encode(twimlResponse{Message: message}); err != nil {
		s.logger.Error("twiml encode failed", "err", err)
	}
}
