package fxparser

import "github.com/andreyvit/mapi/propval"

// Structural markers of a Fast Transfer stream (MS-OXCFXICS 2.2.4.1.4). No
// value follows a marker.
const (
	StartTopFld            propval.Tag = 0x40090003
	StartSubFld            propval.Tag = 0x400A0003
	EndFolder              propval.Tag = 0x400B0003
	StartMessage           propval.Tag = 0x400C0003
	EndMessage             propval.Tag = 0x400D0003
	StartFAIMsg            propval.Tag = 0x40100003
	StartEmbed             propval.Tag = 0x40010003
	EndEmbed               propval.Tag = 0x40020003
	StartRecip             propval.Tag = 0x40030003
	EndToRecip             propval.Tag = 0x40040003
	NewAttach              propval.Tag = 0x40000003
	EndAttach              propval.Tag = 0x400E0003
	IncrSyncChg            propval.Tag = 0x40120003
	IncrSyncChgPartial     propval.Tag = 0x407D0003
	IncrSyncDel            propval.Tag = 0x40130003
	IncrSyncEnd            propval.Tag = 0x40140003
	IncrSyncRead           propval.Tag = 0x402F0003
	IncrSyncStateBegin     propval.Tag = 0x403A0003
	IncrSyncStateEnd       propval.Tag = 0x403B0003
	IncrSyncProgressMode   propval.Tag = 0x4074000B
	IncrSyncProgressPerMsg propval.Tag = 0x4075000B
	IncrSyncMessage        propval.Tag = 0x40150003
	IncrSyncGroupInfo      propval.Tag = 0x407B0102
	FXErrorInfo            propval.Tag = 0x40180003
)

// MetaTagFXDelProp precedes the tag of a property the receiver must delete.
const MetaTagFXDelProp propval.Tag = 0x40160003

// ICS state and deletion properties. They are ordinary binary properties
// whose payload is an IDSET or CNSET.
const (
	MetaTagIdsetGiven           propval.Tag = 0x40170003
	MetaTagCnsetSeen            propval.Tag = 0x67960102
	MetaTagCnsetSeenFAI         propval.Tag = 0x67DA0102
	MetaTagCnsetRead            propval.Tag = 0x67D20102
	MetaTagIdsetDeleted         propval.Tag = 0x67E50102
	MetaTagIdsetNoLongerInScope propval.Tag = 0x40210102
	MetaTagIdsetExpired         propval.Tag = 0x67930102
	MetaTagIdsetRead            propval.Tag = 0x402D0102
	MetaTagIdsetUnread          propval.Tag = 0x402E0102
)

var markerNames = map[propval.Tag]string{
	StartTopFld:            "StartTopFld",
	StartSubFld:            "StartSubFld",
	EndFolder:              "EndFolder",
	StartMessage:           "StartMessage",
	EndMessage:             "EndMessage",
	StartFAIMsg:            "StartFAIMsg",
	StartEmbed:             "StartEmbed",
	EndEmbed:               "EndEmbed",
	StartRecip:             "StartRecip",
	EndToRecip:             "EndToRecip",
	NewAttach:              "NewAttach",
	EndAttach:              "EndAttach",
	IncrSyncChg:            "IncrSyncChg",
	IncrSyncChgPartial:     "IncrSyncChgPartial",
	IncrSyncDel:            "IncrSyncDel",
	IncrSyncEnd:            "IncrSyncEnd",
	IncrSyncRead:           "IncrSyncRead",
	IncrSyncStateBegin:     "IncrSyncStateBegin",
	IncrSyncStateEnd:       "IncrSyncStateEnd",
	IncrSyncProgressMode:   "IncrSyncProgressMode",
	IncrSyncProgressPerMsg: "IncrSyncProgressPerMsg",
	IncrSyncMessage:        "IncrSyncMessage",
	IncrSyncGroupInfo:      "IncrSyncGroupInfo",
	FXErrorInfo:            "FXErrorInfo",
}

var metaTagNames = map[propval.Tag]string{
	MetaTagFXDelProp:            "MetaTagFXDelProp",
	MetaTagIdsetGiven:           "MetaTagIdsetGiven",
	MetaTagCnsetSeen:            "MetaTagCnsetSeen",
	MetaTagCnsetSeenFAI:         "MetaTagCnsetSeenFAI",
	MetaTagCnsetRead:            "MetaTagCnsetRead",
	MetaTagIdsetDeleted:         "MetaTagIdsetDeleted",
	MetaTagIdsetNoLongerInScope: "MetaTagIdsetNoLongerInScope",
	MetaTagIdsetExpired:         "MetaTagIdsetExpired",
	MetaTagIdsetRead:            "MetaTagIdsetRead",
	MetaTagIdsetUnread:          "MetaTagIdsetUnread",
}

func IsMarker(tag propval.Tag) bool {
	_, ok := markerNames[tag]
	return ok
}

// TagName names markers, meta-tags and well-known properties.
func TagName(tag propval.Tag) string {
	if s, ok := markerNames[tag]; ok {
		return s
	}
	if s, ok := metaTagNames[tag]; ok {
		return s
	}
	return tag.String()
}
