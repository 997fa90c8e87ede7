/*
Package clients provides a Go client for the governance node HTTP API.

GovernanceClient mirrors the node's routes one method per operation. Write
methods take the sending account explicitly; SignBallot builds a ballot
signed with a local key so any account can relay it with RelayVote.

Non-200 responses are returned as *StatusError carrying the status code and
the node's error message.

	client := clients.NewGovernanceClient("http://localhost:8080")
	resp, err := client.Propose(ctx, proposer, mutation, epoch.CurrentFee)
*/
package clients
