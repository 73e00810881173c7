package sqlinline

const QInsertCampaignJob = `--sql 469c5578-82a9-4348-9804-6e56554290bb
insert into campaign_jobs (status, mode, input, progress)
values ('queued', $1::text, $2::jsonb, '{"overallPercent":0,"step":"Queued"}'::jsonb)
returning id::text;
`

const QSelectCampaignJob = `--sql 775d8ebd-84d1-422c-840c-b267d177b84c
select id::text, status, mode, input, progress, output, coalesce(error, ''), created_at, updated_at
from campaign_jobs
where id = $1::uuid;
`

const QSelectCampaignJobForUpdate = `--sql b658d340-6a24-4066-b54b-8d21f1d5c3f9
select id::text, status, mode, input, progress, output, coalesce(error, ''), created_at, updated_at
from campaign_jobs
where id = $1::uuid
for update;
`

const QUpdateCampaignJob = `--sql 9bb6d76d-bc26-4bde-abee-61af96a83e8c
update campaign_jobs
set status = coalesce($2::text, status),
    output = coalesce($3::jsonb, output),
    error = coalesce($4::text, error),
    updated_at = now()
where id = $1::uuid;
`

const QMarkCampaignJobRunning = `--sql a39f5c57-13b3-412e-8968-322652d44a97
update campaign_jobs
set status = 'running', updated_at = now()
where id = $1::uuid
  and status = 'queued';
`

const QUpdateCampaignJobProgress = `--sql 9abcc3cf-bedd-4ea7-a14f-d6de4b35abd3
update campaign_jobs
set progress = $2::jsonb,
    updated_at = now()
where id = $1::uuid;
`

const QSelectNextQueuedCampaignJob = `--sql b03962d7-82a8-405c-8b8f-b2584bb56ccf
select id::text
from campaign_jobs
where status = 'queued'
order by created_at asc
limit 1;
`
