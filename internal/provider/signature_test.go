package provider

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"testing"
)

// signFor builds a signature the way the provider does: HMAC-SHA1 over the
// URL plus each form key and value in sorted key order.
func signFor(authToken, requestURL string, form url.Values) string {
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(requestURL))
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range form[k] {
			mac.Write([]byte(k))
			mac.Write([]byte(v))
		}
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateSignature_Valid(t *testing.T) {
	form := url.Values{
		"From":       {"+15551234567"},
		"NumMedia":   {"1"},
		"MessageSid": {"SM123"},
	}
	reqURL := "https://example.com/twilio"
	sig := signFor("token", reqURL, form)

	if !ValidateSignature("token", reqURL, form, sig) {
		t.Error("valid signature should verify")
	}
}

func TestValidateSignature_WrongToken(t *testing.T) {
	form := url.Values{"From": {"+15551234567"}}
	reqURL := "https://example.com/twilio"
	sig := signFor("other-token", reqURL, form)

	if ValidateSignature("token", reqURL, form, sig) {
		t.Error("signature from the wrong token should not verify")
	}
}

func TestValidateSignature_TamperedForm(t *testing.T) {
	form := url.Values{"From": {"+15551234567"}}
	reqURL := "https://example.com/twilio"
	sig := signFor("token", reqURL, form)

	form.Set("From", "+19998887777")
	if ValidateSignature("token", reqURL, form, sig) {
		t.Error("tampered form should not verify")
	}
}

func TestValidateSignature_Empty(t *testing.T) {
	if ValidateSignature("token", "https://example.com/twilio", url.Values{}, "") {
		t.Error("empty signature should not verify")
	}
}
