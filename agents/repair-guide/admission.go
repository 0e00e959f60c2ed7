package repairguide

import (
	"strings"

	"repair-stack/internal/models"
)

// Admit applies the admission thresholds to one candidate. Duration bounds are
// inclusive. A video without any votes has a like ratio of 1.
func Admit(video models.CandidateVideo, t models.AdmissionThresholds) bool {
	if max(video.ViewCount, 0) < t.MinViews {
		return false
	}
	if video.Duration < t.MinDuration || video.Duration > t.MaxDuration {
		return false
	}
	return likeRatio(video) >= t.MinLikeRatio
}

// FilterAdmitted keeps admitted candidates in catalog order.
func FilterAdmitted(videos []models.CandidateVideo, t models.AdmissionThresholds) []models.CandidateVideo {
	var out []models.CandidateVideo
	for _, v := range videos {
		if Admit(v, t) {
			out = append(out, v)
		}
	}
	return out
}

func likeRatio(video models.CandidateVideo) float64 {
	likes := max(video.LikeCount, 0)
	dislikes := max(video.DislikeCount, 0)
	if likes+dislikes == 0 {
		return 1
	}
	return float64(likes) / float64(likes+dislikes)
}

var repairKeywords = []string{
	"teardown", "disassembly", "repair", "fix", "remove", "replace",
	"replacement", "unscrew", "removal", "step by step",
}

// HasRepairKeyword reports whether a title mentions a repair activity. It is
// a logging hint only and never affects admission.
func HasRepairKeyword(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range repairKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
