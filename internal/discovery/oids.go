package discovery

// SNMPv2-MIB system group (1.3.6.1.2.1.1).
const (
	OIDSysDescr    = "1.3.6.1.2.1.1.1.0"
	OIDSysObjectID = "1.3.6.1.2.1.1.2.0"
	OIDSysUpTime   = "1.3.6.1.2.1.1.3.0"
	OIDSysContact  = "1.3.6.1.2.1.1.4.0"
	OIDSysName     = "1.3.6.1.2.1.1.5.0"
	OIDSysLocation = "1.3.6.1.2.1.1.6.0"
)

// IF-MIB ifTable (1.3.6.1.2.1.2.2.1), 32-bit counters.
const (
	OIDIfTable       = "1.3.6.1.2.1.2.2.1"
	OIDIfIndex       = "1.3.6.1.2.1.2.2.1.1"
	OIDIfDescr       = "1.3.6.1.2.1.2.2.1.2"
	OIDIfType        = "1.3.6.1.2.1.2.2.1.3"
	OIDIfSpeed       = "1.3.6.1.2.1.2.2.1.5"
	OIDIfPhysAddress = "1.3.6.1.2.1.2.2.1.6"
	OIDIfAdminStatus = "1.3.6.1.2.1.2.2.1.7"
	OIDIfOperStatus  = "1.3.6.1.2.1.2.2.1.8"
	OIDIfInOctets    = "1.3.6.1.2.1.2.2.1.10"
	OIDIfInUcastPkts = "1.3.6.1.2.1.2.2.1.11"
	OIDIfInErrors    = "1.3.6.1.2.1.2.2.1.14"
	OIDIfOutOctets   = "1.3.6.1.2.1.2.2.1.16"
	OIDIfOutUcast    = "1.3.6.1.2.1.2.2.1.17"
	OIDIfOutErrors   = "1.3.6.1.2.1.2.2.1.20"
)

// IF-MIB ifXTable (1.3.6.1.2.1.31.1.1.1), 64-bit HC counters.
const (
	OIDIfXTable         = "1.3.6.1.2.1.31.1.1.1"
	OIDIfName           = "1.3.6.1.2.1.31.1.1.1.1"
	OIDIfHCInOctets     = "1.3.6.1.2.1.31.1.1.1.6"
	OIDIfHCInUcastPkts  = "1.3.6.1.2.1.31.1.1.1.7"
	OIDIfHCOutOctets    = "1.3.6.1.2.1.31.1.1.1.10"
	OIDIfHCOutUcastPkts = "1.3.6.1.2.1.31.1.1.1.11"
	OIDIfHighSpeed      = "1.3.6.1.2.1.31.1.1.1.15"
)

// Enterprise prefixes under 1.3.6.1.4.1 used for sysObjectID classification.
const (
	OIDEnterprises      = "1.3.6.1.4.1"
	EnterpriseCisco     = "9"
	EnterpriseHuawei    = "2011"
	EnterpriseJuniper   = "2636"
	EnterpriseMikrotik  = "14988"
	EnterpriseUbiquiti  = "41112"
	EnterpriseCambium   = "17713"
	EnterpriseTPLink    = "11863"
	EnterpriseNetSNMP   = "8072"
	EnterpriseMicrosoft = "311"
)
