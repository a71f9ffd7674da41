package lending

import (
	"github.com/google/uuid"
)

const (
	issueCommandType  = "IssueLoan"
	returnCommandType = "ReturnLoan"
	renewCommandType  = "RenewLoan"
)

// IssueCommand represents the intent to issue a copy of a title to a member.
type IssueCommand struct {
	MemberID uuid.UUID
	TitleID  uuid.UUID
}

// CommandType returns the type identifier for this command, used for
// observability and routing.
func (c IssueCommand) CommandType() string {
	return issueCommandType
}

// BuildIssueCommand creates a new IssueCommand with the provided parameters.
func BuildIssueCommand(memberID uuid.UUID, titleID uuid.UUID) IssueCommand {
	return IssueCommand{
		MemberID: memberID,
		TitleID:  titleID,
	}
}

// ReturnCommand represents the intent to return an open loan.
type ReturnCommand struct {
	LoanID uuid.UUID
}

// CommandType returns the type identifier for this command, used for
// observability and routing.
func (c ReturnCommand) CommandType() string {
	return returnCommandType
}

// BuildReturnCommand creates a new ReturnCommand with the provided parameters.
func BuildReturnCommand(loanID uuid.UUID) ReturnCommand {
	return ReturnCommand{
		LoanID: loanID,
	}
}

// RenewCommand represents the intent to extend the due date of an open loan.
type RenewCommand struct {
	LoanID uuid.UUID
}

// CommandType returns the type identifier for this command, used for
// observability and routing.
func (c RenewCommand) CommandType() string {
	return renewCommandType
}

// BuildRenewCommand creates a new RenewCommand with the provided parameters.
func BuildRenewCommand(loanID uuid.UUID) RenewCommand {
	return RenewCommand{
		LoanID: loanID,
	}
}
