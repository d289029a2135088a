package util

import "testing"

func TestParseSender_Basic(t *testing.T) {
	tests := []struct {
		in       string
		wantAddr string
		wantName string
	}{
		{`Name <User@Example.COM>`, "user@example.com", "Name"},
		{`"Name" <user+news@Example.com>`, "user+news@example.com", "Name"}, // alias kept
		{`user@EXAMPLE.com`, "user@example.com", ""},
		{`  user.name@example.com  `, "user.name@example.com", ""},
		{`=?UTF-8?B?Q2Fmw6k=?= <cafe@example.com>`, "cafe@example.com", "Café"},
		{`Shop [Deals] <News@Shop.com>`, "news@shop.com", "Shop [Deals]"}, // lenient fallback
		{`bad address`, "", ""},
		{`"A" <not-an-email> , "B" <c@D.com>`, "c@d.com", "B"}, // list fallback picks first valid
		{``, "", ""},
	}
	for _, tc := range tests {
		addr, name := ParseSender(tc.in)
		if addr != tc.wantAddr || name != tc.wantName {
			t.Errorf("ParseSender(%q) = %q, %q; want %q, %q", tc.in, addr, name, tc.wantAddr, tc.wantName)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  News@Example.COM "); got != "news@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}

func TestDecodeHeader(t *testing.T) {
	if got := DecodeHeader("=?ISO-8859-1?Q?Caf=E9_news?="); got != "Café news" {
		t.Errorf("DecodeHeader latin1 = %q", got)
	}
	if got := DecodeHeader("plain subject"); got != "plain subject" {
		t.Errorf("DecodeHeader plain = %q", got)
	}
}

func TestNameFromAddress(t *testing.T) {
	if got := NameFromAddress("jane.doe@example.com"); got != "Jane Doe" {
		t.Errorf("NameFromAddress = %q", got)
	}
}
