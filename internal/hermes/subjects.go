package hermes

import "strings"

const (
	// SubjectProfileUpdated matches profile change notices from the profile service.
	SubjectProfileUpdated = "market.profile.*.updated"

	// StreamName retains marketplace lifecycle events for replay.
	StreamName = "MARKET"
)

// streamSubjects are the lifecycle subject trees captured by the MARKET stream.
// Anything else, such as profile notices, travels over core NATS.
var streamSubjects = []string{"market.job.>", "market.proposal.>", "market.invitation.>"}

var streamPrefixes = []string{"market.job.", "market.proposal.", "market.invitation."}

// Streamed reports whether subject is retained by the MARKET stream.
func Streamed(subject string) bool {
	for _, p := range streamPrefixes {
		if strings.HasPrefix(subject, p) {
			return true
		}
	}
	return false
}

// Job lifecycle subjects
func SubjectJobPublished(jobID string) string { return "market.job." + jobID + ".published" }
func SubjectJobInReview(jobID string) string  { return "market.job." + jobID + ".in_review" }
func SubjectJobClosed(jobID string) string    { return "market.job." + jobID + ".closed" }
func SubjectJobCancelled(jobID string) string { return "market.job." + jobID + ".cancelled" }
func SubjectJobFilled(jobID string) string    { return "market.job." + jobID + ".filled" }
func SubjectJobDeleted(jobID string) string   { return "market.job." + jobID + ".deleted" }

// Proposal lifecycle subjects
func SubjectProposalCreated(proposalID string) string      { return "market.proposal." + proposalID + ".created" }
func SubjectProposalSubmitted(proposalID string) string    { return "market.proposal." + proposalID + ".submitted" }
func SubjectProposalViewed(proposalID string) string       { return "market.proposal." + proposalID + ".viewed" }
func SubjectProposalShortlisted(proposalID string) string  { return "market.proposal." + proposalID + ".shortlisted" }
func SubjectProposalInterviewing(proposalID string) string { return "market.proposal." + proposalID + ".interviewing" }
func SubjectProposalOfferSent(proposalID string) string    { return "market.proposal." + proposalID + ".offer_sent" }
func SubjectProposalAccepted(proposalID string) string     { return "market.proposal." + proposalID + ".accepted" }
func SubjectProposalRejected(proposalID string) string     { return "market.proposal." + proposalID + ".rejected" }
func SubjectProposalWithdrawn(proposalID string) string    { return "market.proposal." + proposalID + ".withdrawn" }

// Invitation subjects
func SubjectInvitationSent(invitationID string) string     { return "market.invitation." + invitationID + ".sent" }
func SubjectInvitationAccepted(invitationID string) string { return "market.invitation." + invitationID + ".accepted" }
func SubjectInvitationDeclined(invitationID string) string { return "market.invitation." + invitationID + ".declined" }
func SubjectInvitationExpired(invitationID string) string  { return "market.invitation." + invitationID + ".expired" }
