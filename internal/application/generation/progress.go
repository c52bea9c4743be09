package generation

// 进度区间
const (
	progressOutlineStart = 0
	progressOutlineDone  = 20
	progressWritingDone  = 80
	progressEditDone     = 92
	progressReviewDone   = 96
	progressRevisionDone = 99
)

// band 将 [0,total] 中的 done 线性映射到 [from,to]
func band(from, to, done, total int) int {
	if total <= 0 {
		return to
	}
	if done > total {
		done = total
	}
	return from + (to-from)*done/total
}
