package wire

import (
	"errors"
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/zfs-snmpd/internal/zfs/common/log"
	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
)

const testOID = ".1.3.6.1.4.1.8072.9999.9999.1.0.0.0"

func marshalRequest(t *testing.T, version gosnmp.SnmpVersion, pduType gosnmp.PDUType, oids ...string) []byte {
	t.Helper()
	packet := &gosnmp.SnmpPacket{
		Version:   version,
		Community: "public",
		PDUType:   pduType,
		RequestID: 1234,
	}
	for _, o := range oids {
		packet.Variables = append(packet.Variables, gosnmp.SnmpPDU{Name: o, Type: gosnmp.Null})
	}
	data, err := packet.MarshalMsg()
	require.NoError(t, err)
	return data
}

func decodeResponse(t *testing.T, data []byte) *gosnmp.SnmpPacket {
	t.Helper()
	packet, err := (&gosnmp.GoSNMP{Version: gosnmp.Version2c}).SnmpDecodePacket(data)
	require.NoError(t, err)
	require.Equal(t, gosnmp.GetResponse, packet.PDUType)
	return packet
}

func TestDecodeRequest_Kinds(t *testing.T) {
	codec := NewSNMPCodec(log.NewNoopLogger(), 0)

	tests := []struct {
		pdu  gosnmp.PDUType
		want domain.RequestKind
	}{
		{gosnmp.GetRequest, domain.RequestGet},
		{gosnmp.GetNextRequest, domain.RequestGetNext},
		{gosnmp.SetRequest, domain.RequestSet},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			req, err := codec.DecodeRequest(marshalRequest(t, gosnmp.Version2c, tt.pdu, testOID, ".1.3.6.1.2"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Kind)
			assert.Equal(t, uint32(1234), req.ID)
			assert.Equal(t, "public", req.Community)
			require.Len(t, req.OIDs, 2)
			assert.Equal(t, testOID, req.OIDs[0].String())
			assert.Equal(t, ".1.3.6.1.2", req.OIDs[1].String())
		})
	}
}

func TestDecodeRequest_GetBulk(t *testing.T) {
	codec := NewSNMPCodec(log.NewNoopLogger(), 0)

	packet := &gosnmp.SnmpPacket{
		Version:        gosnmp.Version2c,
		Community:      "public",
		PDUType:        gosnmp.GetBulkRequest,
		RequestID:      77,
		NonRepeaters:   1,
		MaxRepetitions: 10,
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.1", Type: gosnmp.Null},
			{Name: testOID, Type: gosnmp.Null},
		},
	}
	data, err := packet.MarshalMsg()
	require.NoError(t, err)

	req, err := codec.DecodeRequest(data)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestGetBulk, req.Kind)
	assert.Equal(t, 1, req.NonRepeaters)
	assert.Equal(t, 10, req.MaxRepetitions)
	assert.Len(t, req.OIDs, 2)
}

func TestDecodeRequest_Rejects(t *testing.T) {
	codec := NewSNMPCodec(log.NewNoopLogger(), 0)

	_, err := codec.DecodeRequest([]byte{0x01, 0x02, 0x03})
	assert.Error(t, err, "garbage")

	_, err = codec.DecodeRequest(nil)
	assert.Error(t, err, "empty")

	_, err = codec.DecodeRequest(marshalRequest(t, gosnmp.Version1, gosnmp.GetRequest, testOID))
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))

	_, err = codec.DecodeRequest(marshalRequest(t, gosnmp.Version2c, gosnmp.GetResponse, testOID))
	assert.True(t, errors.Is(err, ErrUnsupportedPDU))
}

func TestEncodeResponse_Values(t *testing.T) {
	codec := NewSNMPCodec(log.NewNoopLogger(), 0)
	base := domain.MustParseOID(".1.3.6.1.4.1.8072.9999.9999.1")

	req := domain.Request{ID: 9, Community: "secret", Kind: domain.RequestGet}
	resp := domain.Response{ID: 9, Results: []domain.Result{
		{OID: base.Append(0, 0, 0), Status: domain.StatusFound, Value: domain.CounterValue(1 << 40)},
		{OID: base.Append(1, 0, 0), Status: domain.StatusFound, Value: domain.IntegerValue(3)},
		{OID: base.Append(1, 1, 0), Status: domain.StatusFound, Value: domain.StringValue("tank")},
		{OID: base.Append(0, 0, 9), Status: domain.StatusNoSuchObject},
		{OID: base.Append(0, 0, 8), Status: domain.StatusNoSuchInstance},
		{OID: base.Append(9), Status: domain.StatusEndOfMibView},
	}}

	data, err := codec.EncodeResponse(req, resp)
	require.NoError(t, err)

	packet := decodeResponse(t, data)
	assert.Equal(t, uint32(9), packet.RequestID)
	assert.Equal(t, "secret", packet.Community)
	assert.Equal(t, gosnmp.NoError, packet.Error)
	require.Len(t, packet.Variables, 6)

	v := packet.Variables
	assert.Equal(t, base.Append(0, 0, 0).String(), v[0].Name)
	assert.Equal(t, gosnmp.Counter64, v[0].Type)
	assert.Equal(t, uint64(1<<40), v[0].Value)
	assert.Equal(t, gosnmp.Integer, v[1].Type)
	assert.Equal(t, 3, v[1].Value)
	assert.Equal(t, gosnmp.OctetString, v[2].Type)
	assert.Equal(t, []byte("tank"), v[2].Value)
	assert.Equal(t, gosnmp.NoSuchObject, v[3].Type)
	assert.Equal(t, gosnmp.NoSuchInstance, v[4].Type)
	assert.Equal(t, gosnmp.EndOfMibView, v[5].Type)
}

func TestEncodeResponse_ErrorStatus(t *testing.T) {
	codec := NewSNMPCodec(log.NewNoopLogger(), 0)
	req := domain.Request{ID: 4, Community: "public", Kind: domain.RequestSet, OIDs: []domain.OID{domain.MustParseOID(testOID)}}

	data, err := codec.EncodeResponse(req, domain.ErrorResponse(req, domain.ErrorNotWritable))
	require.NoError(t, err)

	packet := decodeResponse(t, data)
	assert.Equal(t, gosnmp.NotWritable, packet.Error)
	assert.Equal(t, uint8(1), packet.ErrorIndex)
	require.Len(t, packet.Variables, 1)
	assert.Equal(t, testOID, packet.Variables[0].Name)
	assert.Equal(t, gosnmp.Null, packet.Variables[0].Type)
}

func TestEncodeResponse_TooBig(t *testing.T) {
	codec := NewSNMPCodec(log.NewNoopLogger(), 100)
	oid := domain.MustParseOID(testOID)

	req := domain.Request{ID: 5, Community: "public", Kind: domain.RequestGetBulk}
	resp := domain.Response{ID: 5}
	for i := 0; i < 20; i++ {
		resp.Results = append(resp.Results, domain.Result{OID: oid.Append(uint32(i)), Status: domain.StatusFound, Value: domain.CounterValue(uint64(i))})
	}

	data, err := codec.EncodeResponse(req, resp)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), 100)

	packet := decodeResponse(t, data)
	assert.Equal(t, gosnmp.TooBig, packet.Error)
	assert.Empty(t, packet.Variables)
}

func TestEncodeResponse_UnknownKind(t *testing.T) {
	codec := NewSNMPCodec(nil, 0)
	resp := domain.Response{Results: []domain.Result{
		{OID: domain.MustParseOID(testOID), Status: domain.StatusFound, Value: domain.Value{Kind: 99}},
	}}
	_, err := codec.EncodeResponse(domain.Request{}, resp)
	assert.Error(t, err)
}
