package timer

// 时间轮参数，与 Linux timer 一致: tv1 256 个槽, tv2~tv5 各 64 个槽
const (
	tvnBits   = 6
	tvrBits   = 8
	tvnSize   = 1 << tvnBits
	tvrSize   = 1 << tvrBits
	tvnMask   = tvnSize - 1
	tvrMask   = tvrSize - 1
	tvnLevels = 4 // tv2 ~ tv5

	// MaxTval 可表示的最远超时距离，更远的超时按此归槽
	MaxTval = int64(1)<<(tvrBits+tvnLevels*tvnBits) - 1
)

const (
	// HeadCount 时间轮自身占用的实体数: 全部槽位表头 + 工作链表 + 级联链表
	HeadCount = tvrSize + tvnLevels*tvnSize + 2

	DefaultCapacity = 1 << 16

	// InvalidID SetTimer 失败时返回
	InvalidID int64 = -1
)
