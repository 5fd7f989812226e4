package discovery

import (
	"testing"

	"github.com/HerbHall/netsweep/pkg/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		descr       string
		objectID    string
		wantType    models.DeviceType
		wantVendor  string
		wantModel   string
		wantVersion string
	}{
		{
			name:       "bare mikrotik",
			descr:      "Mikrotik RouterOS",
			wantType:   models.DeviceTypeMikrotik,
			wantVendor: "Mikrotik",
		},
		{
			name:       "routeros board only",
			descr:      "RouterOS RB4011iGS+",
			wantType:   models.DeviceTypeMikrotik,
			wantVendor: "Mikrotik",
			wantModel:  "RB4011iGS+",
		},
		{
			name:        "routeros version and board",
			descr:       "MikroTik RouterOS 7.12.1 (stable) CCR2004-16G-2S+",
			wantType:    models.DeviceTypeMikrotik,
			wantVendor:  "Mikrotik",
			wantModel:   "CCR2004-16G-2S+",
			wantVersion: "7.12.1",
		},
		{
			name:        "edgeos",
			descr:       "EdgeOS v2.0.9-hotfix.7.5622762.230615.0857",
			wantType:    models.DeviceTypeUbiquiti,
			wantVendor:  "Ubiquiti",
			wantVersion: "2.0.9",
		},
		{
			name:        "cambium epmp",
			descr:       "Cambium Networks ePMP 3000 Release 4.7.1",
			wantType:    models.DeviceTypeCambium,
			wantVendor:  "Cambium",
			wantModel:   "ePMP 3000",
			wantVersion: "4.7.1",
		},
		{
			name:        "cisco catalyst",
			descr:       "Cisco IOS Software, C2960 Software (C2960-LANBASEK9-M), Version 15.0(2)SE11, RELEASE SOFTWARE (fc3)",
			wantType:    models.DeviceTypeSwitch,
			wantVendor:  "Cisco",
			wantModel:   "C2960",
			wantVersion: "15.0(2)SE11",
		},
		{
			name:        "cisco isr",
			descr:       "Cisco IOS XE Software, Version 16.09.04",
			wantType:    models.DeviceTypeRouter,
			wantVendor:  "Cisco",
			wantVersion: "16.09.04",
		},
		{
			name:        "juniper mx",
			descr:       "Juniper Networks, Inc. mx480 internet router, kernel JUNOS 18.2R3-S2.9",
			wantType:    models.DeviceTypeRouter,
			wantVendor:  "Juniper",
			wantModel:   "mx480",
			wantVersion: "18.2R3-S2.9",
		},
		{
			name:        "juniper ex",
			descr:       "Juniper Networks, Inc. ex4300-48t Ethernet Switch, kernel JUNOS 18.4R2-S3",
			wantType:    models.DeviceTypeSwitch,
			wantVendor:  "Juniper",
			wantModel:   "ex4300-48t",
			wantVersion: "18.4R2-S3",
		},
		{
			name:        "huawei vrp",
			descr:       "Huawei Versatile Routing Platform Software VRP (R) software, Version 8.180 (NE40E V800R011C00SPC200)",
			wantType:    models.DeviceTypeRouter,
			wantVendor:  "Huawei",
			wantModel:   "NE40E",
			wantVersion: "8.180",
		},
		{
			name:       "tp-link switch",
			descr:      "TP-Link JetStream 24-Port Gigabit L2 Managed Switch T2600G-28TS",
			wantType:   models.DeviceTypeSwitch,
			wantVendor: "TP-Link",
			wantModel:  "T2600G-28TS",
		},
		{
			name:        "linux host",
			descr:       "Linux nms01 5.15.0-91-generic #101-Ubuntu SMP Tue Nov 14 13:30:08 UTC 2023 x86_64",
			wantType:    models.DeviceTypeServer,
			wantVendor:  "Linux",
			wantVersion: "5.15.0-91-generic",
		},
		{
			name:        "windows host",
			descr:       "Hardware: Intel64 Family 6 Model 85 - Software: Windows Version 6.3 (Build 17763 Multiprocessor Free)",
			wantType:    models.DeviceTypeWorkstation,
			wantVendor:  "Microsoft",
			wantVersion: "6.3",
		},
		{
			name:       "object id fallback",
			objectID:   ".1.3.6.1.4.1.14988.1",
			wantType:   models.DeviceTypeMikrotik,
			wantVendor: "Mikrotik",
		},
		{
			name:       "object id cisco",
			objectID:   "1.3.6.1.4.1.9.1.1208",
			wantType:   models.DeviceTypeRouter,
			wantVendor: "Cisco",
		},
		{
			name:     "no match",
			descr:    "acme widget controller",
			objectID: "1.3.6.1.4.1.99999.1",
			wantType: models.DeviceTypeUnknown,
		},
		{
			name:     "empty",
			wantType: models.DeviceTypeUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.descr, tt.objectID)
			if got.DeviceType != tt.wantType {
				t.Errorf("DeviceType = %q, want %q", got.DeviceType, tt.wantType)
			}
			if got.Vendor != tt.wantVendor {
				t.Errorf("Vendor = %q, want %q", got.Vendor, tt.wantVendor)
			}
			if got.Model != tt.wantModel {
				t.Errorf("Model = %q, want %q", got.Model, tt.wantModel)
			}
			if got.OSVersion != tt.wantVersion {
				t.Errorf("OSVersion = %q, want %q", got.OSVersion, tt.wantVersion)
			}
		})
	}
}

func TestClassify_Confidence(t *testing.T) {
	if c := Classify("", ""); c.Confidence != 0 {
		t.Errorf("unknown confidence = %d, want 0", c.Confidence)
	}
	bare := Classify("Mikrotik RouterOS", "")
	full := Classify("RouterOS 7.12.1 RB4011iGS+", "")
	if full.Confidence <= bare.Confidence {
		t.Errorf("full match confidence %d should exceed bare %d", full.Confidence, bare.Confidence)
	}
	if full.Confidence > 100 {
		t.Errorf("confidence %d exceeds 100", full.Confidence)
	}
}
