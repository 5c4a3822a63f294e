package snapshot

import (
	"math"

	"github.com/fixkme/timerwheel/errs"
	"github.com/fixkme/timerwheel/registry"
	"github.com/fixkme/timerwheel/timer"
	"github.com/google/uuid"
	"github.com/rs/xid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Version 镜像格式版本
const Version uint32 = 1

// Envelope 持久化的一份镜像
type Envelope struct {
	Version   uint32
	ID        xid.ID    // 每次保存生成
	Owner     uuid.UUID // 写入者
	CreatedMs int64
	Image     *timer.Image
}

// envelope 字段号
const (
	envVersion protowire.Number = 1
	envID      protowire.Number = 2
	envOwner   protowire.Number = 3
	envCreated protowire.Number = 4
	envImage   protowire.Number = 5
)

// image 字段号
const (
	imgCapacity    protowire.Number = 1
	imgJiffies     protowire.Number = 2
	imgNextTimer   protowire.Number = 3
	imgActive      protowire.Number = 4
	imgAll         protowire.Number = 5
	imgTv1         protowire.Number = 6
	imgTvn         protowire.Number = 7
	imgWorkList    protowire.Number = 8
	imgCascadeList protowire.Number = 9
	imgSequences   protowire.Number = 10
	imgEntity      protowire.Number = 11
)

// entity 字段号, 链接域可能是负数, 用 zigzag
const (
	entID       protowire.Number = 1
	entKind     protowire.Number = 2
	entGlobalID protowire.Number = 3
	entPrev     protowire.Number = 4
	entNext     protowire.Number = 5
	entExpires  protowire.Number = 6
	entInterval protowire.Number = 7
	entUserData protowire.Number = 8
	entAction   protowire.Number = 9
)

func Marshal(env *Envelope) ([]byte, error) {
	if env == nil || env.Image == nil {
		return nil, errs.InvalidArgument.Print("empty envelope")
	}
	var b []byte
	b = protowire.AppendTag(b, envVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(env.Version))
	b = protowire.AppendTag(b, envID, protowire.BytesType)
	b = protowire.AppendBytes(b, env.ID.Bytes())
	b = protowire.AppendTag(b, envOwner, protowire.BytesType)
	b = protowire.AppendBytes(b, env.Owner[:])
	b = protowire.AppendTag(b, envCreated, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(env.CreatedMs))
	b = protowire.AppendTag(b, envImage, protowire.BytesType)
	b = protowire.AppendBytes(b, appendImage(nil, env.Image))
	return b, nil
}

func appendVarintField(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendZigZagField(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendPackedInt32(b []byte, num protowire.Number, vs []int32) []byte {
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(v)))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendImage(b []byte, img *timer.Image) []byte {
	b = appendVarintField(b, imgCapacity, int64(img.Capacity))
	b = appendVarintField(b, imgJiffies, img.Jiffies)
	b = appendVarintField(b, imgNextTimer, img.NextTimer)
	b = appendVarintField(b, imgActive, img.ActiveTimers)
	b = appendVarintField(b, imgAll, img.AllTimers)
	b = appendPackedInt32(b, imgTv1, img.Tv1)
	for _, tv := range img.Tvn {
		b = appendPackedInt32(b, imgTvn, tv)
	}
	b = appendZigZagField(b, imgWorkList, int64(img.WorkList))
	b = appendZigZagField(b, imgCascadeList, int64(img.CascadeList))

	var seq []byte
	for _, s := range img.Sequences {
		seq = protowire.AppendVarint(seq, uint64(s))
	}
	b = protowire.AppendTag(b, imgSequences, protowire.BytesType)
	b = protowire.AppendBytes(b, seq)

	var ent []byte
	for i := range img.Entities {
		e := &img.Entities[i]
		ent = ent[:0]
		ent = appendVarintField(ent, entID, int64(e.ID))
		ent = appendVarintField(ent, entKind, int64(e.Kind))
		ent = appendVarintField(ent, entGlobalID, e.GlobalID)
		ent = appendZigZagField(ent, entPrev, int64(e.Prev))
		ent = appendZigZagField(ent, entNext, int64(e.Next))
		ent = appendZigZagField(ent, entExpires, e.Expires)
		ent = appendZigZagField(ent, entInterval, e.Interval)
		ent = appendZigZagField(ent, entUserData, e.UserData)
		if e.Action != "" {
			ent = protowire.AppendTag(ent, entAction, protowire.BytesType)
			ent = protowire.AppendString(ent, e.Action)
		}
		b = protowire.AppendTag(b, imgEntity, protowire.BytesType)
		b = protowire.AppendBytes(b, ent)
	}
	return b
}

// decoder 逐字段解析，遇到未知字段跳过
type decoder struct {
	b   []byte
	err error
}

func (d *decoder) next() (protowire.Number, protowire.Type, bool) {
	if d.err != nil || len(d.b) == 0 {
		return 0, 0, false
	}
	num, typ, n := protowire.ConsumeTag(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return 0, 0, false
	}
	d.b = d.b[n:]
	return num, typ, true
}

func (d *decoder) varint(typ protowire.Type) uint64 {
	if typ != protowire.VarintType {
		d.err = errs.Codec.Printf("wire type %d, want varint", typ)
		return 0
	}
	v, n := protowire.ConsumeVarint(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return 0
	}
	d.b = d.b[n:]
	return v
}

func (d *decoder) zigzag(typ protowire.Type) int64 {
	return protowire.DecodeZigZag(d.varint(typ))
}

func (d *decoder) bytes(typ protowire.Type) []byte {
	if typ != protowire.BytesType {
		d.err = errs.Codec.Printf("wire type %d, want bytes", typ)
		return nil
	}
	v, n := protowire.ConsumeBytes(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return nil
	}
	d.b = d.b[n:]
	return v
}

func (d *decoder) skip(num protowire.Number, typ protowire.Type) {
	n := protowire.ConsumeFieldValue(num, typ, d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return
	}
	d.b = d.b[n:]
}

func (d *decoder) packedInt32(typ protowire.Type) []int32 {
	raw := d.bytes(typ)
	if d.err != nil {
		return nil
	}
	var vs []int32
	for len(raw) > 0 {
		v, n := protowire.ConsumeVarint(raw)
		if n < 0 {
			d.err = protowire.ParseError(n)
			return nil
		}
		raw = raw[n:]
		vs = append(vs, int32(protowire.DecodeZigZag(v)))
	}
	return vs
}

func (d *decoder) failed() error {
	if d.err == nil {
		return nil
	}
	return errs.Codec.Printf("%v", d.err)
}

func Unmarshal(data []byte) (*Envelope, error) {
	env := &Envelope{}
	d := &decoder{b: data}
	var image []byte
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch num {
		case envVersion:
			env.Version = uint32(d.varint(typ))
		case envID:
			raw := d.bytes(typ)
			if d.err == nil {
				id, err := xid.FromBytes(raw)
				if err != nil {
					d.err = err
				}
				env.ID = id
			}
		case envOwner:
			raw := d.bytes(typ)
			if d.err == nil {
				owner, err := uuid.FromBytes(raw)
				if err != nil {
					d.err = err
				}
				env.Owner = owner
			}
		case envCreated:
			env.CreatedMs = int64(d.varint(typ))
		case envImage:
			image = d.bytes(typ)
		default:
			d.skip(num, typ)
		}
	}
	if err := d.failed(); err != nil {
		return nil, err
	}
	if env.Version != Version {
		return nil, errs.Codec.Printf("image version %d, want %d", env.Version, Version)
	}
	if image == nil {
		return nil, errs.Codec.Print("envelope without image")
	}
	img, err := unmarshalImage(image)
	if err != nil {
		return nil, err
	}
	env.Image = img
	return env, nil
}

func unmarshalImage(data []byte) (*timer.Image, error) {
	img := &timer.Image{}
	d := &decoder{b: data}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch num {
		case imgCapacity:
			img.Capacity = int32(d.varint(typ))
		case imgJiffies:
			img.Jiffies = int64(d.varint(typ))
		case imgNextTimer:
			img.NextTimer = int64(d.varint(typ))
		case imgActive:
			img.ActiveTimers = int64(d.varint(typ))
		case imgAll:
			img.AllTimers = int64(d.varint(typ))
		case imgTv1:
			img.Tv1 = d.packedInt32(typ)
		case imgTvn:
			img.Tvn = append(img.Tvn, d.packedInt32(typ))
		case imgWorkList:
			img.WorkList = int32(d.zigzag(typ))
		case imgCascadeList:
			img.CascadeList = int32(d.zigzag(typ))
		case imgSequences:
			raw := d.bytes(typ)
			for d.err == nil && len(raw) > 0 {
				v, n := protowire.ConsumeVarint(raw)
				if n < 0 {
					d.err = protowire.ParseError(n)
					break
				}
				raw = raw[n:]
				img.Sequences = append(img.Sequences, int64(v))
			}
		case imgEntity:
			raw := d.bytes(typ)
			if d.err == nil {
				e, err := unmarshalEntity(raw)
				if err != nil {
					return nil, err
				}
				img.Entities = append(img.Entities, e)
			}
		default:
			d.skip(num, typ)
		}
	}
	if err := d.failed(); err != nil {
		return nil, err
	}
	return img, nil
}

func unmarshalEntity(data []byte) (timer.EntityImage, error) {
	var e timer.EntityImage
	d := &decoder{b: data}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch num {
		case entID:
			e.ID = int32(d.varint(typ))
		case entKind:
			k := d.varint(typ)
			if k > math.MaxUint8 {
				d.err = errs.Codec.Printf("entity kind %d out of range", k)
				break
			}
			e.Kind = registry.Kind(k)
		case entGlobalID:
			e.GlobalID = int64(d.varint(typ))
		case entPrev:
			e.Prev = int32(d.zigzag(typ))
		case entNext:
			e.Next = int32(d.zigzag(typ))
		case entExpires:
			e.Expires = d.zigzag(typ)
		case entInterval:
			e.Interval = d.zigzag(typ)
		case entUserData:
			e.UserData = d.zigzag(typ)
		case entAction:
			e.Action = string(d.bytes(typ))
		default:
			d.skip(num, typ)
		}
	}
	return e, d.failed()
}
