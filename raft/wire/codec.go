package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Marshal encodes p into a fresh byte slice.
func Marshal(p Packet) ([]byte, error) {
	return AppendPacket(nil, p)
}

// AppendPacket appends the encoding of p to buf.
func AppendPacket(buf []byte, p Packet) ([]byte, error) {
	buf = append(buf, Version)
	buf = appendUint16(buf, uint16(p.Tag()))

	switch m := p.(type) {
	case Handshake:
		buf = appendUint32(buf, m.Term)
		buf = appendUint32(buf, m.ID)

	case RequestVote:
		buf = appendUint32(buf, m.Term)
		buf = appendUint32(buf, m.CandidateID)
		buf = appendUint32(buf, m.LastLogIndex)
		buf = appendUint32(buf, m.LastLogTerm)

	case RequestVoteResult:
		buf = appendUint32(buf, m.Term)
		buf = appendBool(buf, m.VoteGranted)

	case AppendEntries:
		if len(m.Entries) > MaxEntries {
			return nil, ErrTooManyEntries
		}
		buf = appendUint32(buf, m.Term)
		buf = appendUint32(buf, m.LeaderID)
		buf = appendUint32(buf, m.PrevLogIndex)
		buf = appendUint32(buf, m.PrevLogTerm)
		buf = appendUint32(buf, m.LeaderCommit)
		buf = append(buf, byte(len(m.Entries)))
		for _, e := range m.Entries {
			if len(e.Command) > MaxCommandSize {
				return nil, ErrCommandTooLarge
			}
			buf = appendUint32(buf, e.Index)
			buf = appendUint32(buf, e.Term)
			buf = appendUint32(buf, uint32(len(e.Command)))
			buf = append(buf, e.Command...)
			buf = append(buf, RS)
		}

	case AppendEntriesResult:
		buf = appendUint32(buf, m.Term)
		buf = appendBool(buf, m.Success)
		buf = appendUint32(buf, m.MatchIndex)
		buf = appendUint32(buf, m.ConflictIndex)

	default:
		return nil, fmt.Errorf("wire: cannot encode %T", p)
	}

	return append(buf, EOT), nil
}

// Unmarshal decodes exactly one packet from b. Trailing bytes are a
// protocol error.
func Unmarshal(b []byte) (Packet, error) {
	d := NewDecoder(bytes.NewReader(b))
	p, err := d.Decode()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, d.corrupt("truncated packet")
		}
		return nil, err
	}
	if d.off != int64(len(b)) {
		return nil, d.corrupt("trailing bytes after end of transmission")
	}
	return p, nil
}

// Encoder writes packets to a stream.
type Encoder struct {
	w   io.Writer
	buf []byte
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes p in a single Write call.
func (e *Encoder) Encode(p Packet) error {
	buf, err := AppendPacket(e.buf[:0], p)
	if err != nil {
		return err
	}
	e.buf = buf
	_, err = e.w.Write(buf)
	return err
}

// Decoder reads a stream of packets. It returns io.EOF when the stream
// ends cleanly between packets, io.ErrUnexpectedEOF when it ends inside
// one, and a *ProtocolError for malformed bytes.
//
// The wire cannot tell an empty slice from a nil one: an AppendEntries
// without entries decodes with nil Entries and an empty command decodes
// as a nil Command.
type Decoder struct {
	r   *bufio.Reader
	off int64
}

func NewDecoder(r io.Reader) *Decoder {
	if br, ok := r.(*bufio.Reader); ok {
		return &Decoder{r: br}
	}
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads the next packet.
func (d *Decoder) Decode() (Packet, error) {
	version, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	d.off++
	if version != Version {
		return nil, d.corrupt(fmt.Sprintf("unsupported version 0x%02x", version))
	}

	raw, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	tag := Tag(int16(raw))

	var p Packet
	switch tag {
	case TagHandshake:
		p, err = d.handshake()
	case TagRequestVote:
		p, err = d.requestVote()
	case TagRequestVoteResult:
		p, err = d.requestVoteResult()
	case TagAppendEntries:
		p, err = d.appendEntries()
	case TagAppendEntriesResult:
		p, err = d.appendEntriesResult()
	default:
		return nil, d.corrupt(fmt.Sprintf("unknown type tag %d", int16(tag)))
	}
	if err != nil {
		return nil, err
	}

	if err := d.expect(EOT, "end of transmission"); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *Decoder) handshake() (Packet, error) {
	var m Handshake
	if err := d.readUint32s(&m.Term, &m.ID); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *Decoder) requestVote() (Packet, error) {
	var m RequestVote
	if err := d.readUint32s(&m.Term, &m.CandidateID, &m.LastLogIndex, &m.LastLogTerm); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *Decoder) requestVoteResult() (Packet, error) {
	var m RequestVoteResult
	var err error
	if m.Term, err = d.readUint32(); err != nil {
		return nil, err
	}
	if m.VoteGranted, err = d.readBool(); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *Decoder) appendEntries() (Packet, error) {
	var m AppendEntries
	if err := d.readUint32s(&m.Term, &m.LeaderID, &m.PrevLogIndex, &m.PrevLogTerm, &m.LeaderCommit); err != nil {
		return nil, err
	}

	count, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		m.Entries = make([]Entry, 0, count)
	}
	for i := 0; i < int(count); i++ {
		var e Entry
		var size uint32
		if err := d.readUint32s(&e.Index, &e.Term, &size); err != nil {
			return nil, err
		}
		if size > MaxCommandSize {
			return nil, d.corrupt(fmt.Sprintf("command length %d exceeds limit", size))
		}
		if size > 0 {
			e.Command = make([]byte, size)
			n, err := io.ReadFull(d.r, e.Command)
			d.off += int64(n)
			if err != nil {
				return nil, unexpected(err)
			}
		}
		if err := d.expect(RS, "record separator"); err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, e)
	}
	return m, nil
}

func (d *Decoder) appendEntriesResult() (Packet, error) {
	var m AppendEntriesResult
	var err error
	if m.Term, err = d.readUint32(); err != nil {
		return nil, err
	}
	if m.Success, err = d.readBool(); err != nil {
		return nil, err
	}
	if err := d.readUint32s(&m.MatchIndex, &m.ConflictIndex); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *Decoder) corrupt(reason string) error {
	return &ProtocolError{Offset: d.off, Reason: reason}
}

func (d *Decoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, unexpected(err)
	}
	d.off++
	return b, nil
}

func (d *Decoder) expect(sentinel byte, name string) error {
	b, err := d.readByte()
	if err != nil {
		return err
	}
	if b != sentinel {
		return &ProtocolError{
			Offset: d.off - 1,
			Reason: fmt.Sprintf("expected %s 0x%02x, got 0x%02x", name, sentinel, b),
		}
	}
	return nil
}

func (d *Decoder) readBool() (bool, error) {
	b, err := d.readByte()
	if err != nil {
		return false, err
	}
	switch b {
	case ACK:
		return true, nil
	case NAK:
		return false, nil
	default:
		return false, &ProtocolError{
			Offset: d.off - 1,
			Reason: fmt.Sprintf("expected ACK or NAK, got 0x%02x", b),
		}
	}
}

func (d *Decoder) readUint16() (uint16, error) {
	var b [2]byte
	n, err := io.ReadFull(d.r, b[:])
	d.off += int64(n)
	if err != nil {
		return 0, unexpected(err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func (d *Decoder) readUint32() (uint32, error) {
	var b [4]byte
	n, err := io.ReadFull(d.r, b[:])
	d.off += int64(n)
	if err != nil {
		return 0, unexpected(err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (d *Decoder) readUint32s(dst ...*uint32) error {
	for _, p := range dst {
		v, err := d.readUint32()
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// unexpected turns a clean EOF inside a packet into io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, ACK)
	}
	return append(buf, NAK)
}
