package encoding

import (
	"io"
)

// MQTT 3.1.1 Packet Decoders
//
// Mirrors the decode shape of packets_mqtt5.go's Parse* functions but
// without any property list: v3.1.1 packets carry no properties, so
// property-related fields are simply absent from the *_311 structs.

// ParseConnectPacket311 parses an MQTT 3.1.1 CONNECT packet.
func ParseConnectPacket311(r io.Reader, fh *FixedHeader) (*ConnectPacket311, error) {
	pkt := &ConnectPacket311{FixedHeader: *fh}

	protocolName, err := readUTF8String(r)
	if err != nil {
		return nil, err
	}
	pkt.ProtocolName = protocolName
	if protocolName != "MQTT" {
		return nil, ErrInvalidProtocolName
	}

	version, err := readByte(r)
	if err != nil {
		return nil, err
	}
	pkt.ProtocolVersion = ProtocolVersion(version)
	if pkt.ProtocolVersion != ProtocolVersion311 {
		return nil, ErrInvalidProtocolVersion
	}

	flags, err := readByte(r)
	if err != nil {
		return nil, err
	}
	pkt.CleanSession = (flags & 0x02) != 0
	pkt.WillFlag = (flags & 0x04) != 0
	pkt.WillQoS = QoS((flags & 0x18) >> 3)
	pkt.WillRetain = (flags & 0x20) != 0
	pkt.PasswordFlag = (flags & 0x40) != 0
	pkt.UsernameFlag = (flags & 0x80) != 0
	if (flags & 0x01) != 0 {
		return nil, ErrMalformedPacket
	}
	if !pkt.WillFlag && (pkt.WillQoS != 0 || pkt.WillRetain) {
		return nil, ErrWillFlagMismatch
	}
	if !pkt.WillQoS.IsValid() {
		return nil, ErrInvalidWillQoS
	}
	if pkt.PasswordFlag && !pkt.UsernameFlag {
		return nil, ErrPasswordWithoutUsername
	}

	keepAlive, err := readTwoByteInt(r)
	if err != nil {
		return nil, err
	}
	pkt.KeepAlive = keepAlive

	clientID, err := readUTF8String(r)
	if err != nil {
		return nil, err
	}
	pkt.ClientID = clientID

	if pkt.WillFlag {
		willTopic, err := readUTF8String(r)
		if err != nil {
			return nil, err
		}
		pkt.WillTopic = willTopic

		willPayload, err := readBinaryData(r)
		if err != nil {
			return nil, err
		}
		pkt.WillPayload = willPayload
	}

	if pkt.UsernameFlag {
		username, err := readUTF8String(r)
		if err != nil {
			return nil, err
		}
		pkt.Username = username
	}

	if pkt.PasswordFlag {
		password, err := readBinaryData(r)
		if err != nil {
			return nil, err
		}
		pkt.Password = password
	}

	return pkt, nil
}

// ParseConnackPacket311 parses an MQTT 3.1.1 CONNACK packet.
func ParseConnackPacket311(r io.Reader, fh *FixedHeader) (*ConnackPacket311, error) {
	pkt := &ConnackPacket311{FixedHeader: *fh}

	flags, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if flags&0xFE != 0 {
		return nil, ErrMalformedPacket
	}
	pkt.SessionPresent = flags&0x01 != 0

	rc, err := readByte(r)
	if err != nil {
		return nil, err
	}
	pkt.ReturnCode = rc

	return pkt, nil
}

// ParsePublishPacket311 parses an MQTT 3.1.1 PUBLISH packet.
func ParsePublishPacket311(r io.Reader, fh *FixedHeader) (*PublishPacket311, error) {
	pkt := &PublishPacket311{FixedHeader: *fh}

	topic, err := readUTF8String(r)
	if err != nil {
		return nil, err
	}
	if err := ValidateTopicName(topic); err != nil {
		return nil, err
	}
	pkt.TopicName = topic

	consumed := 2 + len(topic)

	if fh.QoS != QoS0 {
		pid, err := readTwoByteInt(r)
		if err != nil {
			return nil, err
		}
		if pid == 0 {
			return nil, ErrInvalidPacketIDZero
		}
		pkt.PacketID = pid
		consumed += 2
	}

	remaining := int(fh.RemainingLength) - consumed
	if remaining < 0 {
		return nil, ErrInvalidRemainingLength
	}
	payload := make([]byte, remaining)
	if remaining > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, ErrUnexpectedEOF
		}
	}
	pkt.Payload = payload

	return pkt, nil
}

func parsePacketIDOnly311(r io.Reader) (uint16, error) {
	pid, err := readTwoByteInt(r)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		return 0, ErrInvalidPacketIDZero
	}
	return pid, nil
}

// ParsePubackPacket311 parses an MQTT 3.1.1 PUBACK packet.
func ParsePubackPacket311(r io.Reader, fh *FixedHeader) (*PubackPacket311, error) {
	pid, err := parsePacketIDOnly311(r)
	if err != nil {
		return nil, err
	}
	return &PubackPacket311{FixedHeader: *fh, PacketID: pid}, nil
}

// ParsePubrecPacket311 parses an MQTT 3.1.1 PUBREC packet.
func ParsePubrecPacket311(r io.Reader, fh *FixedHeader) (*PubrecPacket311, error) {
	pid, err := parsePacketIDOnly311(r)
	if err != nil {
		return nil, err
	}
	return &PubrecPacket311{FixedHeader: *fh, PacketID: pid}, nil
}

// ParsePubrelPacket311 parses an MQTT 3.1.1 PUBREL packet.
func ParsePubrelPacket311(r io.Reader, fh *FixedHeader) (*PubrelPacket311, error) {
	pid, err := parsePacketIDOnly311(r)
	if err != nil {
		return nil, err
	}
	return &PubrelPacket311{FixedHeader: *fh, PacketID: pid}, nil
}

// ParsePubcompPacket311 parses an MQTT 3.1.1 PUBCOMP packet.
func ParsePubcompPacket311(r io.Reader, fh *FixedHeader) (*PubcompPacket311, error) {
	pid, err := parsePacketIDOnly311(r)
	if err != nil {
		return nil, err
	}
	return &PubcompPacket311{FixedHeader: *fh, PacketID: pid}, nil
}

// ParseSubscribePacket311 parses an MQTT 3.1.1 SUBSCRIBE packet.
func ParseSubscribePacket311(r io.Reader, fh *FixedHeader) (*SubscribePacket311, error) {
	pkt := &SubscribePacket311{FixedHeader: *fh}

	pid, err := readTwoByteInt(r)
	if err != nil {
		return nil, err
	}
	if pid == 0 {
		return nil, ErrInvalidPacketIDZero
	}
	pkt.PacketID = pid

	consumed := 2
	for consumed < int(fh.RemainingLength) {
		filter, err := readUTF8String(r)
		if err != nil {
			return nil, err
		}
		if err := ValidateTopicFilter(filter); err != nil {
			return nil, err
		}
		qosByte, err := readByte(r)
		if err != nil {
			return nil, err
		}
		qos := QoS(qosByte & 0x03)
		if !qos.IsValid() || qosByte&0xFC != 0 {
			return nil, ErrInvalidSubscriptionOpts
		}
		pkt.Subscriptions = append(pkt.Subscriptions, Subscription311{TopicFilter: filter, QoS: qos})
		consumed += 2 + len(filter) + 1
	}

	if len(pkt.Subscriptions) == 0 {
		return nil, ErrEmptySubscriptionList
	}

	return pkt, nil
}

// ParseSubackPacket311 parses an MQTT 3.1.1 SUBACK packet.
func ParseSubackPacket311(r io.Reader, fh *FixedHeader) (*SubackPacket311, error) {
	pkt := &SubackPacket311{FixedHeader: *fh}

	pid, err := readTwoByteInt(r)
	if err != nil {
		return nil, err
	}
	if pid == 0 {
		return nil, ErrInvalidPacketIDZero
	}
	pkt.PacketID = pid

	n := int(fh.RemainingLength) - 2
	if n < 0 {
		return nil, ErrInvalidRemainingLength
	}
	codes := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, codes); err != nil {
			return nil, ErrUnexpectedEOF
		}
	}
	pkt.ReturnCodes = codes

	return pkt, nil
}

// ParseUnsubscribePacket311 parses an MQTT 3.1.1 UNSUBSCRIBE packet.
func ParseUnsubscribePacket311(r io.Reader, fh *FixedHeader) (*UnsubscribePacket311, error) {
	pkt := &UnsubscribePacket311{FixedHeader: *fh}

	pid, err := readTwoByteInt(r)
	if err != nil {
		return nil, err
	}
	if pid == 0 {
		return nil, ErrInvalidPacketIDZero
	}
	pkt.PacketID = pid

	consumed := 2
	for consumed < int(fh.RemainingLength) {
		filter, err := readUTF8String(r)
		if err != nil {
			return nil, err
		}
		if err := ValidateTopicFilter(filter); err != nil {
			return nil, err
		}
		pkt.TopicFilters = append(pkt.TopicFilters, filter)
		consumed += 2 + len(filter)
	}

	if len(pkt.TopicFilters) == 0 {
		return nil, ErrEmptyUnsubscribeList
	}

	return pkt, nil
}

// ParseUnsubackPacket311 parses an MQTT 3.1.1 UNSUBACK packet.
func ParseUnsubackPacket311(r io.Reader, fh *FixedHeader) (*UnsubackPacket311, error) {
	pid, err := parsePacketIDOnly311(r)
	if err != nil {
		return nil, err
	}
	return &UnsubackPacket311{FixedHeader: *fh, PacketID: pid}, nil
}

// ParseDisconnectPacket311 parses an MQTT 3.1.1 DISCONNECT packet (no payload).
func ParseDisconnectPacket311(fh *FixedHeader) (*DisconnectPacket311, error) {
	if fh.RemainingLength != 0 {
		return nil, ErrInvalidRemainingLength
	}
	return &DisconnectPacket311{FixedHeader: *fh}, nil
}
