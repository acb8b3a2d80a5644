package gopwsh

import "testing"

func TestPromoteFault(t *testing.T) {
	tests := []struct {
		name         string
		errText      string
		wantMessage  string
		wantCategory string
		wantNil      bool
	}{
		{
			name:         "message and category",
			errText:      `{"Exception":{"Message":"boom"},"CategoryInfo":{"Reason":"BadThing"}}`,
			wantMessage:  "boom",
			wantCategory: "BadThing",
		},
		{
			name:        "message only",
			errText:     `{"Exception":{"Message":"file not found"}}`,
			wantMessage: "file not found",
		},
		{
			name:         "category only",
			errText:      `{"CategoryInfo":{"Reason":"ItemNotFoundException"}}`,
			wantCategory: "ItemNotFoundException",
		},
		{
			name:    "json object without recognized fields",
			errText: `{"Something":"else"}`,
			wantNil: true,
		},
		{
			name:    "plain error text",
			errText: "Get-Foo : The term 'Get-Foo' is not recognized",
			wantNil: true,
		},
		{
			name:    "braces but not valid json",
			errText: "{not json}",
			wantNil: true,
		},
		{
			name:    "empty",
			errText: "",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fault := promoteFault(tt.errText)
			if tt.wantNil {
				if fault != nil {
					t.Fatalf("promoteFault(%q) = %+v, want nil", tt.errText, fault)
				}
				return
			}
			if fault == nil {
				t.Fatalf("promoteFault(%q) = nil, want fault", tt.errText)
			}
			if fault.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", fault.Message, tt.wantMessage)
			}
			if fault.Category != tt.wantCategory {
				t.Errorf("Category = %q, want %q", fault.Category, tt.wantCategory)
			}
		})
	}
}

func TestScriptFaultError(t *testing.T) {
	withCategory := &ScriptFault{Message: "boom", Category: "BadThing"}
	if got := withCategory.Error(); got != "script fault (BadThing): boom" {
		t.Errorf("Error() = %q", got)
	}
	withoutCategory := &ScriptFault{Message: "boom"}
	if got := withoutCategory.Error(); got != "script fault: boom" {
		t.Errorf("Error() = %q", got)
	}
}
