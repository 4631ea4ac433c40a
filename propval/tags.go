package propval

// Well-known property tags (MS-OXPROPS).
const (
	PidTagAccess                       Tag = 0x0FF40003
	PidTagAddressType                  Tag = 0x3002001F
	PidTagAssociated                   Tag = 0x67AA000B
	PidTagAttachContentId              Tag = 0x3712001F
	PidTagAttachDataBinary             Tag = 0x37010102
	PidTagAttachDataObject             Tag = 0x3701000D
	PidTagAttachFilename               Tag = 0x3704001F
	PidTagAttachLongFilename           Tag = 0x3707001F
	PidTagAttachMethod                 Tag = 0x37050003
	PidTagAttachMimeTag                Tag = 0x370E001F
	PidTagAttachNumber                 Tag = 0x0E210003
	PidTagAttachSize                   Tag = 0x0E200003
	PidTagBody                         Tag = 0x1000001F
	PidTagChangeKey                    Tag = 0x65E20102
	PidTagChangeNumber                 Tag = 0x67A40014
	PidTagClientSubmitTime             Tag = 0x00390040
	PidTagContainerClass               Tag = 0x3613001F
	PidTagContentCount                 Tag = 0x36020003
	PidTagContentUnreadCount           Tag = 0x36030003
	PidTagConversationTopic            Tag = 0x0070001F
	PidTagCreationTime                 Tag = 0x30070040
	PidTagDisplayBcc                   Tag = 0x0E02001F
	PidTagDisplayCc                    Tag = 0x0E03001F
	PidTagDisplayName                  Tag = 0x3001001F
	PidTagDisplayTo                    Tag = 0x0E04001F
	PidTagEmailAddress                 Tag = 0x3003001F
	PidTagEntryId                      Tag = 0x0FFF0102
	PidTagFolderId                     Tag = 0x67480014
	PidTagFolderType                   Tag = 0x36010003
	PidTagHasAttachments               Tag = 0x0E1B000B
	PidTagHtml                         Tag = 0x10130102
	PidTagImportance                   Tag = 0x00170003
	PidTagInReplyToId                  Tag = 0x1042001F
	PidTagInstID                       Tag = 0x674D0014
	PidTagInstanceKey                  Tag = 0x0FF60102
	PidTagInstanceNum                  Tag = 0x674E0003
	PidTagInternetCodepage             Tag = 0x3FDE0003
	PidTagInternetMessageId            Tag = 0x1035001F
	PidTagInternetReferences           Tag = 0x1039001F
	PidTagLastModificationTime         Tag = 0x30080040
	PidTagLastModifierName             Tag = 0x3FFA001F
	PidTagMessageClass                 Tag = 0x001A001F
	PidTagMessageCodepage              Tag = 0x3FFD0003
	PidTagMessageDeliveryTime          Tag = 0x0E060040
	PidTagMessageFlags                 Tag = 0x0E070003
	PidTagMessageSize                  Tag = 0x0E080003
	PidTagMid                          Tag = 0x674A0014
	PidTagNormalizedSubject            Tag = 0x0E1D001F
	PidTagParentFolderId               Tag = 0x67490014
	PidTagParentSourceKey              Tag = 0x65E10102
	PidTagPredecessorChangeList        Tag = 0x65E30102
	PidTagReadReceiptRequested         Tag = 0x0029000B
	PidTagRecipientType                Tag = 0x0C150003
	PidTagRecordKey                    Tag = 0x0FF90102
	PidTagRowid                        Tag = 0x30000003
	PidTagRtfCompressed                Tag = 0x10090102
	PidTagRtfInSync                    Tag = 0x0E1F000B
	PidTagSenderEmailAddress           Tag = 0x0C1F001F
	PidTagSenderName                   Tag = 0x0C1A001F
	PidTagSenderSmtpAddress            Tag = 0x5D01001F
	PidTagSentRepresentingEmailAddress Tag = 0x0065001F
	PidTagSentRepresentingName         Tag = 0x0042001F
	PidTagSentRepresentingSmtpAddress  Tag = 0x5D02001F
	PidTagSmtpAddress                  Tag = 0x39FE001F
	PidTagSourceKey                    Tag = 0x65E00102
	PidTagSubfolders                   Tag = 0x360A000B
	PidTagSubject                      Tag = 0x0037001F
	PidTagTransportMessageHeaders      Tag = 0x007D001F
)

var tagNames = map[Tag]string{
	PidTagAccess:                       "PidTagAccess",
	PidTagAddressType:                  "PidTagAddressType",
	PidTagAssociated:                   "PidTagAssociated",
	PidTagAttachContentId:              "PidTagAttachContentId",
	PidTagAttachDataBinary:             "PidTagAttachDataBinary",
	PidTagAttachDataObject:             "PidTagAttachDataObject",
	PidTagAttachFilename:               "PidTagAttachFilename",
	PidTagAttachLongFilename:           "PidTagAttachLongFilename",
	PidTagAttachMethod:                 "PidTagAttachMethod",
	PidTagAttachMimeTag:                "PidTagAttachMimeTag",
	PidTagAttachNumber:                 "PidTagAttachNumber",
	PidTagAttachSize:                   "PidTagAttachSize",
	PidTagBody:                         "PidTagBody",
	PidTagChangeKey:                    "PidTagChangeKey",
	PidTagChangeNumber:                 "PidTagChangeNumber",
	PidTagClientSubmitTime:             "PidTagClientSubmitTime",
	PidTagContainerClass:               "PidTagContainerClass",
	PidTagContentCount:                 "PidTagContentCount",
	PidTagContentUnreadCount:           "PidTagContentUnreadCount",
	PidTagConversationTopic:            "PidTagConversationTopic",
	PidTagCreationTime:                 "PidTagCreationTime",
	PidTagDisplayBcc:                   "PidTagDisplayBcc",
	PidTagDisplayCc:                    "PidTagDisplayCc",
	PidTagDisplayName:                  "PidTagDisplayName",
	PidTagDisplayTo:                    "PidTagDisplayTo",
	PidTagEmailAddress:                 "PidTagEmailAddress",
	PidTagEntryId:                      "PidTagEntryId",
	PidTagFolderId:                     "PidTagFolderId",
	PidTagFolderType:                   "PidTagFolderType",
	PidTagHasAttachments:               "PidTagHasAttachments",
	PidTagHtml:                         "PidTagHtml",
	PidTagImportance:                   "PidTagImportance",
	PidTagInReplyToId:                  "PidTagInReplyToId",
	PidTagInstID:                       "PidTagInstID",
	PidTagInstanceKey:                  "PidTagInstanceKey",
	PidTagInstanceNum:                  "PidTagInstanceNum",
	PidTagInternetCodepage:             "PidTagInternetCodepage",
	PidTagInternetMessageId:            "PidTagInternetMessageId",
	PidTagInternetReferences:           "PidTagInternetReferences",
	PidTagLastModificationTime:         "PidTagLastModificationTime",
	PidTagLastModifierName:             "PidTagLastModifierName",
	PidTagMessageClass:                 "PidTagMessageClass",
	PidTagMessageCodepage:              "PidTagMessageCodepage",
	PidTagMessageDeliveryTime:          "PidTagMessageDeliveryTime",
	PidTagMessageFlags:                 "PidTagMessageFlags",
	PidTagMessageSize:                  "PidTagMessageSize",
	PidTagMid:                          "PidTagMid",
	PidTagNormalizedSubject:            "PidTagNormalizedSubject",
	PidTagParentFolderId:               "PidTagParentFolderId",
	PidTagParentSourceKey:              "PidTagParentSourceKey",
	PidTagPredecessorChangeList:        "PidTagPredecessorChangeList",
	PidTagReadReceiptRequested:         "PidTagReadReceiptRequested",
	PidTagRecipientType:                "PidTagRecipientType",
	PidTagRecordKey:                    "PidTagRecordKey",
	PidTagRowid:                        "PidTagRowid",
	PidTagRtfCompressed:                "PidTagRtfCompressed",
	PidTagRtfInSync:                    "PidTagRtfInSync",
	PidTagSenderEmailAddress:           "PidTagSenderEmailAddress",
	PidTagSenderName:                   "PidTagSenderName",
	PidTagSenderSmtpAddress:            "PidTagSenderSmtpAddress",
	PidTagSentRepresentingEmailAddress: "PidTagSentRepresentingEmailAddress",
	PidTagSentRepresentingName:         "PidTagSentRepresentingName",
	PidTagSentRepresentingSmtpAddress:  "PidTagSentRepresentingSmtpAddress",
	PidTagSmtpAddress:                  "PidTagSmtpAddress",
	PidTagSourceKey:                    "PidTagSourceKey",
	PidTagSubfolders:                   "PidTagSubfolders",
	PidTagSubject:                      "PidTagSubject",
	PidTagTransportMessageHeaders:      "PidTagTransportMessageHeaders",
}

var tagsByName = func() map[string]Tag {
	m := make(map[string]Tag, len(tagNames))
	for t, s := range tagNames {
		m[s] = t
	}
	return m
}()
